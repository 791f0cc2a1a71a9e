package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// profileFile is the on-disk set of ledger servers the CLI knows about.
type profileFile struct {
	Active   string             `toml:"active"`
	Profiles map[string]Profile `toml:"profile"`
}

// Profile describes one ledger server and how to talk to it. Empty fields
// fall through to the flag defaults.
type Profile struct {
	HTTP      string `toml:"http"`
	GRPC      string `toml:"grpc,omitempty"`
	Transport string `toml:"transport,omitempty"`
	Token     string `toml:"token,omitempty"`
	Actor     string `toml:"actor,omitempty"`
	NATS      string `toml:"nats,omitempty"`
}

func profilePath() (string, error) {
	if p := os.Getenv("CAFETRACE_PROFILES"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cafetrace", "profiles.toml"), nil
}

func readProfiles() (profileFile, error) {
	pf := profileFile{Profiles: map[string]Profile{}}
	path, err := profilePath()
	if err != nil {
		return pf, err
	}
	if _, err := toml.DecodeFile(path, &pf); err != nil && !os.IsNotExist(err) {
		return pf, fmt.Errorf("reading %s: %w", path, err)
	}
	if pf.Profiles == nil {
		pf.Profiles = map[string]Profile{}
	}
	return pf, nil
}

// updateProfiles applies fn to the stored profiles and writes them back
// with owner-only permissions, since profiles may carry tokens.
func updateProfiles(fn func(*profileFile) error) error {
	pf, err := readProfiles()
	if err != nil {
		return err
	}
	if err := fn(&pf); err != nil {
		return err
	}
	path, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(pf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var (
	activeOnce    sync.Once
	activeProfile Profile
)

// currentProfile returns the active profile, or a zero Profile if none is
// selected or the file is unreadable.
func currentProfile() Profile {
	activeOnce.Do(func() {
		pf, err := readProfiles()
		if err == nil && pf.Active != "" {
			activeProfile = pf.Profiles[pf.Active]
		}
	})
	return activeProfile
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid URL %q: want http:// or https:// with a host", raw)
	}
	return nil
}

// maskToken keeps the first four characters of a token.
func maskToken(tok string) string {
	const keep = 4
	if len(tok) <= keep {
		return strings.Repeat("*", len(tok))
	}
	return tok[:keep] + strings.Repeat("*", len(tok)-keep)
}

var profileCmd = &cobra.Command{
	Use:               "profile",
	Short:             "Manage saved ledger server profiles",
	GroupID:           "system",
	PersistentPreRunE: noClient,
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name> <http-url>",
	Short: "Create or replace a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, httpURL := args[0], args[1]
		if err := validateHTTPURL(httpURL); err != nil {
			return err
		}
		p := Profile{HTTP: httpURL}
		p.GRPC, _ = cmd.Flags().GetString("grpc")
		p.Transport, _ = cmd.Flags().GetString("transport")
		p.Token, _ = cmd.Flags().GetString("token")
		p.Actor, _ = cmd.Flags().GetString("actor")
		p.NATS, _ = cmd.Flags().GetString("nats")
		if p.Transport != "" && p.Transport != "http" && p.Transport != "grpc" {
			return fmt.Errorf("unknown transport %q (must be http or grpc)", p.Transport)
		}
		if p.Transport == "grpc" && p.GRPC == "" {
			return fmt.Errorf("transport grpc needs --grpc")
		}
		use, _ := cmd.Flags().GetBool("use")
		err := updateProfiles(func(pf *profileFile) error {
			pf.Profiles[name] = p
			if use || len(pf.Profiles) == 1 {
				pf.Active = name
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %s (%s)\n", name, httpURL)
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a profile the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := updateProfiles(func(pf *profileFile) error {
			if _, ok := pf.Profiles[name]; !ok {
				return fmt.Errorf("no profile named %q", name)
			}
			pf.Active = name
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Using profile %s\n", name)
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := updateProfiles(func(pf *profileFile) error {
			if _, ok := pf.Profiles[name]; !ok {
				return fmt.Errorf("no profile named %q", name)
			}
			delete(pf.Profiles, name)
			if pf.Active == name {
				pf.Active = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s\n", name)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List profiles; the active one is starred",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pf, err := readProfiles()
		if err != nil {
			return err
		}
		if len(pf.Profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No profiles. Add one with 'ct profile set <name> <http-url>'.")
			return nil
		}
		names := make([]string, 0, len(pf.Profiles))
		for name := range pf.Profiles {
			names = append(names, name)
		}
		slices.Sort(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tNAME\tHTTP\tGRPC\tACTOR\tTOKEN")
		for _, name := range names {
			p := pf.Profiles[name]
			star := ""
			if name == pf.Active {
				star = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", star, name, p.HTTP, dash(p.GRPC), dash(p.Actor), dash(maskToken(p.Token)))
		}
		return w.Flush()
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	f := profileSetCmd.Flags()
	f.String("grpc", "", "gRPC address, e.g. ledger.coop.example:9090")
	f.String("transport", "", "preferred transport (http or grpc)")
	f.String("token", "", "bearer token")
	f.String("actor", "", "actor id to record on writes")
	f.String("nats", "", "NATS URL used by 'ct watch'")
	f.Bool("use", false, "make this the active profile")

	profileCmd.AddCommand(profileSetCmd, profileUseCmd, profileDeleteCmd, profileListCmd)
}
