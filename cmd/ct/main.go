// Command ct is the cafetrace CLI: it runs the ledger server and talks to
// one over HTTP or gRPC.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/alfredjeanlab/cafetrace/internal/client"
	"github.com/alfredjeanlab/cafetrace/internal/ui"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	jsonOutput bool
	actor      string
	authToken  string
	noColor    bool

	ledgerClient client.LedgerClient
)

// Each connection default comes from the environment first, then the
// active profile, then a local fallback.
func envOrProfile(env, fromProfile, fallback string) string {
	if s := os.Getenv(env); s != "" {
		return s
	}
	if fromProfile != "" {
		return fromProfile
	}
	return fallback
}

func defaultActor() string {
	if s := envOrProfile("CAFETRACE_ACTOR", currentProfile().Actor, ""); s != "" {
		return s
	}
	out, err := exec.Command("git", "config", "user.email").Output()
	if err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name
		}
	}
	return "unknown"
}

// noClient is used as PersistentPreRunE by commands that never dial a server.
func noClient(*cobra.Command, []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:           "ct <command>",
	Short:         "Coffee microlot traceability ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := client.Options{Token: authToken, Actor: actor}
		switch transport {
		case "http":
			ledgerClient = client.NewHTTPClient(httpURL, opts)
		case "grpc":
			c, err := client.NewGRPCClient(serverAddr, opts)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			ledgerClient = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if ledgerClient != nil {
			ledgerClient.Close()
		}
	},
}

func init() {
	p := currentProfile()
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", envOrProfile("CAFETRACE_HTTP_URL", p.HTTP, "http://localhost:8080"), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", envOrProfile("CAFETRACE_SERVER", p.GRPC, "localhost:9090"), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", envOrProfile("CAFETRACE_TRANSPORT", p.Transport, "http"), "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "actor id recorded as responsible for writes")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", envOrProfile("CAFETRACE_TOKEN", p.Token, ""), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "microlots", Title: "Microlots:"},
		&cobra.Group{ID: "chain", Title: "Chain:"},
		&cobra.Group{ID: "records", Title: "Quality and certifications:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	cobra.OnInitialize(func() {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
	})
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Microlots
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deactivateCmd)

	// Chain
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(resolveCmd)

	// Quality and certifications
	rootCmd.AddCommand(qcCmd)
	rootCmd.AddCommand(certCmd)

	// Views
	rootCmd.AddCommand(publicCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(actorsCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
