package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cafetrace/internal/ui"
)

type healthReport struct {
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latency_ms"`
	Attempts  int     `json:"attempts"`
}

// probeHealth asks the server for its status, retrying every interval until
// it answers "ok" or wait runs out. A zero wait means a single attempt.
func probeHealth(ctx context.Context, wait, interval time.Duration) (healthReport, error) {
	var rep healthReport
	deadline := time.Now().Add(wait)
	for {
		rep.Attempts++
		start := time.Now()
		status, err := ledgerClient.Health(ctx)
		rep.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
		if err == nil {
			rep.Status = status
			if status == "ok" {
				return rep, nil
			}
		}
		if wait <= 0 || time.Now().Add(interval).After(deadline) {
			if err != nil {
				return rep, fmt.Errorf("checking health: %w", err)
			}
			return rep, nil
		}
		select {
		case <-ctx.Done():
			return rep, ctx.Err()
		case <-time.After(interval):
		}
	}
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the ledger server",
	Long: `Check the health of the ledger server.

With --wait the check is repeated until the server reports ok or the wait
expires, which suits deploy scripts that start ct serve in the background.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")
		rep, err := probeHealth(cmd.Context(), wait, 500*time.Millisecond)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, rep); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "Health: %s %s\n", ui.RenderCheck(rep.Status == "ok", rep.Status, rep.Status),
				ui.RenderMuted(fmt.Sprintf("(%.1fms)", rep.LatencyMs)))
		}
		if rep.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", rep.Status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().Duration("wait", 0, "keep checking until healthy or this long has passed")
}
