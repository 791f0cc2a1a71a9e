package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cafetrace/internal/archive"
	"github.com/alfredjeanlab/cafetrace/internal/config"
	"github.com/alfredjeanlab/cafetrace/internal/store/postgres"
	"github.com/alfredjeanlab/cafetrace/internal/ui"
)

var archiveCmd = &cobra.Command{
	Use:               "archive",
	Short:             "Export and verify JSONL ledger archives",
	GroupID:           "system",
	PersistentPreRunE: noClient,
}

var archiveExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the whole ledger as JSONL",
	Long: `Write every microlot with its chain, quality records and certifications
as JSONL, reading the database named by CAFETRACE_DATABASE_URL.

Writes to stdout unless --out is given; --out replaces the file atomically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		outPath, _ := cmd.Flags().GetString("out")
		if outPath == "" {
			return archive.ExportJSONL(ctx, store, cmd.OutOrStdout())
		}

		var buf bytes.Buffer
		if err := archive.ExportJSONL(ctx, store, &buf); err != nil {
			return err
		}
		if err := archive.NewFileDestination(outPath).Write(ctx, buf.Bytes()); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes)\n", outPath, buf.Len())
		return nil
	},
}

var archiveVerifyCmd = &cobra.Command{
	Use:   "verify <file|s3://bucket/key|->",
	Short: "Recompute every chain in an archive without touching the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readArchiveSource(cmd, args[0])
		if err != nil {
			return err
		}
		a, err := archive.ReadJSONL(bytes.NewReader(data))
		if err != nil {
			return err
		}
		rep := archive.Verify(a)

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, rep); err != nil {
				return err
			}
		} else {
			for i := range rep.Results {
				if !rep.Results[i].Valid {
					printVerification(out, &rep.Results[i])
				}
			}
			if rep.Mismatch != "" {
				fmt.Fprintf(out, "%s %s\n", ui.RenderWarn("mismatch:"), rep.Mismatch)
			}
			fmt.Fprintf(out, "%s %d chains checked, %d invalid\n",
				ui.RenderCheck(rep.OK(), "OK", "FAILED"), rep.Checked, rep.Invalid)
		}
		if !rep.OK() {
			return fmt.Errorf("archive verification failed")
		}
		return nil
	},
}

// readArchiveSource loads an archive from a local path, stdin ("-") or an
// s3://bucket/key URL.
func readArchiveSource(cmd *cobra.Command, src string) ([]byte, error) {
	switch {
	case src == "-":
		return io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(src, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(src, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid S3 location %q (want s3://bucket/key)", src)
		}
		region, _ := cmd.Flags().GetString("s3-region")
		endpoint, _ := cmd.Flags().GetString("s3-endpoint")
		ctx := context.Background()
		d, err := archive.NewS3Destination(ctx, bucket, key, region, endpoint)
		if err != nil {
			return nil, err
		}
		return d.Read(ctx)
	default:
		return os.ReadFile(src)
	}
}

func init() {
	archiveExportCmd.Flags().String("out", "", "write to this file instead of stdout")
	archiveVerifyCmd.Flags().String("s3-region", envOr("CAFETRACE_ARCHIVE_S3_REGION", "us-east-1"), "S3 region")
	archiveVerifyCmd.Flags().String("s3-endpoint", os.Getenv("CAFETRACE_ARCHIVE_S3_ENDPOINT"), "custom S3 endpoint (e.g. MinIO)")
	archiveCmd.AddCommand(archiveExportCmd, archiveVerifyCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
