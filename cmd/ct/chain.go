package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
	"github.com/alfredjeanlab/cafetrace/internal/ui"
)

var advanceCmd = &cobra.Command{
	Use:   "advance <id> <event-type>",
	Short: "Append a lifecycle event and move the microlot's status",
	Long: `Append a lifecycle event to a microlot's chain.

Event types: IN_PROCESSING, DRYING, STORED, READY_FOR_EXPORT, EXPORTED.
Use "ct advance <id> revert --to <STATUS> --reason ..." to correct a status;
reverts are restricted to admin actors.`,
	GroupID: "chain",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := appendInputFromFlags(cmd, args[0], eventTypeArg(args[1]))
		if err != nil {
			return err
		}
		if in.EventType == model.EventRevert {
			to, _ := cmd.Flags().GetString("to")
			reason, _ := cmd.Flags().GetString("reason")
			if to == "" {
				return fmt.Errorf("revert requires --to")
			}
			if in.Metadata == nil {
				in.Metadata = &model.EventMetadata{}
			}
			in.Metadata.Revert = &model.RevertDetails{To: model.Status(eventTypeArg(to)), Reason: reason}
		}

		m, err := ledgerClient.AdvanceStatus(context.Background(), in)
		if err != nil {
			return fmt.Errorf("advancing %s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, m)
		}
		fmt.Fprintf(out, "%s is now %s (block %d)\n", m.ID, ui.RenderAccent(string(m.Status)), m.TailBlock)
		return nil
	},
}

var annotateCmd = &cobra.Command{
	Use:     "annotate <id> <event-type>",
	Short:   "Append a TRANSPORT or NOTE event without changing status",
	GroupID: "chain",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := appendInputFromFlags(cmd, args[0], eventTypeArg(args[1]))
		if err != nil {
			return err
		}
		e, err := ledgerClient.AppendEvent(context.Background(), in)
		if err != nil {
			return fmt.Errorf("appending to %s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, e)
		}
		fmt.Fprintf(out, "Appended block %d (%s) %s\n", e.BlockNumber, e.EventType, ui.RenderMuted(shortHash(e.CurrentHash)))
		return nil
	},
}

// appendInputFromFlags builds the shared part of an append from the
// description, date, location, process and attribute flags.
func appendInputFromFlags(cmd *cobra.Command, id string, et model.EventType) (*ledger.AppendInput, error) {
	description, _ := cmd.Flags().GetString("description")
	date, err := optionalDate(cmd, "date")
	if err != nil {
		return nil, err
	}
	attrPairs, _ := cmd.Flags().GetStringSlice("attr")
	attrs, err := parseAttributes(attrPairs)
	if err != nil {
		return nil, err
	}
	tags, _ := cmd.Flags().GetStringSlice("tag")

	meta := &model.EventMetadata{
		Location:   locationFromFlags(cmd),
		Tags:       tags,
		Attributes: attrs,
	}
	if cmd.Flags().Lookup("method") != nil {
		method, _ := cmd.Flags().GetString("method")
		facility, _ := cmd.Flags().GetString("facility")
		p := &model.ProcessDetails{
			Method:        method,
			Facility:      facility,
			DurationHours: optionalFloat(cmd, "hours"),
			TemperatureC:  optionalFloat(cmd, "temp"),
			MoisturePct:   optionalFloat(cmd, "moisture"),
		}
		if *p != (model.ProcessDetails{}) {
			meta.Process = p
		}
	}
	in := &ledger.AppendInput{
		MicrolotID:  id,
		EventType:   et,
		Description: description,
		EventDate:   date,
		ActorID:     actor,
	}
	if meta.Location != nil || meta.Process != nil || len(meta.Tags) > 0 || len(meta.Attributes) > 0 {
		in.Metadata = meta
	}
	return in, nil
}

var eventsCmd = &cobra.Command{
	Use:     "events <id>",
	Short:   "Show a microlot's chain in block order",
	GroupID: "chain",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, err := ledgerClient.ListEvents(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("listing events for %s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, chain)
		}
		printChain(out, chain)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <id>...",
	Short: "Recompute and check a microlot's hash chain",
	Long: `Recompute every block's hash and check the links between blocks.

Exits non-zero if any chain is broken.`,
	GroupID: "chain",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var results []*ledger.Verification
		broken := 0
		for _, id := range args {
			v, err := ledgerClient.VerifyChain(context.Background(), id)
			if err != nil {
				return fmt.Errorf("verifying %s: %w", id, err)
			}
			if !v.Valid {
				broken++
			}
			results = append(results, v)
		}
		if jsonOutput {
			if err := printJSON(out, results); err != nil {
				return err
			}
		} else {
			for _, v := range results {
				printVerification(out, v)
			}
		}
		if broken > 0 {
			return fmt.Errorf("%d of %d chains failed verification", broken, len(results))
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:     "resolve <id>",
	Short:   "Clear a microlot's integrity flag after a clean verification",
	GroupID: "chain",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		v, err := ledgerClient.ResolveIntegrity(context.Background(), args[0], note)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, v)
		}
		printVerification(out, v)
		if !v.Valid {
			fmt.Fprintln(os.Stderr, ui.RenderWarn("chain is still broken; flag kept"))
		}
		return nil
	},
}

func addAppendFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("description", "d", "", "event description")
	cmd.Flags().String("date", "", "event date (YYYY-MM-DD or RFC 3339, default now)")
	cmd.Flags().StringSlice("tag", nil, "event tag (repeatable)")
	cmd.Flags().StringSlice("attr", nil, "extra attribute as key=value (repeatable)")
	addLocationFlags(cmd)
}

func init() {
	addAppendFlags(advanceCmd)
	advanceCmd.Flags().String("method", "", "processing method (washed, natural, honey, ...)")
	advanceCmd.Flags().String("facility", "", "processing facility")
	advanceCmd.Flags().Float64("hours", 0, "step duration in hours")
	advanceCmd.Flags().Float64("temp", 0, "temperature in Celsius")
	advanceCmd.Flags().Float64("moisture", 0, "moisture percentage after the step")
	advanceCmd.Flags().String("to", "", "target status for a revert")
	advanceCmd.Flags().String("reason", "", "reason for a revert")

	addAppendFlags(annotateCmd)

	resolveCmd.Flags().String("note", "", "note recorded with the resolution")
}
