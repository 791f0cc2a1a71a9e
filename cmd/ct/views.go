package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var publicCmd = &cobra.Command{
	Use:     "public <code>",
	Short:   "Show the consumer-facing view of a microlot",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := ledgerClient.PublicView(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting public view for %s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, view)
		}
		printPublicView(out, view)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show ledger-wide counts",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := ledgerClient.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, stats)
		}
		printStats(out, stats)
		return nil
	},
}

var actorsCmd = &cobra.Command{
	Use:     "actors",
	Short:   "Show actors that recently wrote to the ledger",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stale, _ := cmd.Flags().GetDuration("stale")
		entries, err := ledgerClient.Actors(context.Background(), stale)
		if err != nil {
			return fmt.Errorf("listing actors: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, entries)
		}
		printActors(out, entries)
		return nil
	},
}

func init() {
	actorsCmd.Flags().Duration("stale", 0, "hide actors idle for longer than this (e.g. 1h)")
}
