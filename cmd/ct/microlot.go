package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Short:   "Register a microlot and write its genesis block",
	GroupID: "microlots",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lot, _ := cmd.Flags().GetString("lot")
		harvest, _ := cmd.Flags().GetString("harvest")
		kg, _ := cmd.Flags().GetFloat64("kg")
		grade, _ := cmd.Flags().GetString("grade")
		description, _ := cmd.Flags().GetString("description")

		in := &ledger.CreateMicrolotInput{
			LotRef:       lot,
			HarvestRef:   harvest,
			QuantityKg:   kg,
			QualityGrade: grade,
			Description:  description,
			Location:     locationFromFlags(cmd),
			ActorID:      actor,
		}
		m, err := ledgerClient.CreateMicrolot(context.Background(), in)
		if err != nil {
			return fmt.Errorf("creating microlot: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, m)
		}
		fmt.Fprintf(out, "Created microlot %s (%s)\n", m.ID, m.Code)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id-or-code>",
	Short:   "Show a microlot",
	GroupID: "microlots",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := ledgerClient.GetMicrolot(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting microlot %s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, m)
		}
		printMicrolot(out, m)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List microlots",
	GroupID: "microlots",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		resp, err := ledgerClient.ListMicrolots(context.Background(), f)
		if err != nil {
			return fmt.Errorf("listing microlots: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, resp)
		}
		printMicrolotList(out, resp.Microlots, resp.Total)
		return nil
	},
}

func filterFromFlags(cmd *cobra.Command) (*model.MicrolotFilter, error) {
	statuses, _ := cmd.Flags().GetStringSlice("status")
	grades, _ := cmd.Flags().GetStringSlice("grade")
	lot, _ := cmd.Flags().GetString("lot")
	harvest, _ := cmd.Flags().GetString("harvest")
	all, _ := cmd.Flags().GetBool("all")
	search, _ := cmd.Flags().GetString("search")
	sort, _ := cmd.Flags().GetString("sort")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	f := &model.MicrolotFilter{
		QualityGrade:    grades,
		LotRef:          lot,
		HarvestRef:      harvest,
		IncludeInactive: all,
		Search:          search,
		Sort:            sort,
		Limit:           limit,
		Offset:          offset,
	}
	for _, s := range statuses {
		st := model.Status(eventTypeArg(s))
		if !st.IsValid() {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		f.Status = append(f.Status, st)
	}
	if cmd.Flags().Changed("flagged") {
		flagged, _ := cmd.Flags().GetBool("flagged")
		f.Flagged = &flagged
	}
	return f, nil
}

var deactivateCmd = &cobra.Command{
	Use:     "deactivate <id>",
	Short:   "Hide a microlot from reads; its chain is kept",
	GroupID: "microlots",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledgerClient.DeactivateMicrolot(context.Background(), args[0]); err != nil {
			return fmt.Errorf("deactivating %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %s\n", args[0])
		return nil
	},
}

func init() {
	createCmd.Flags().String("lot", "", "lot reference (required)")
	createCmd.Flags().String("harvest", "", "harvest reference (required)")
	createCmd.Flags().Float64("kg", 0, "quantity in kilograms (required)")
	createCmd.Flags().String("grade", "", "quality grade (required)")
	createCmd.Flags().String("description", "", "genesis block description")
	addLocationFlags(createCmd)
	for _, name := range []string{"lot", "harvest", "kg", "grade"} {
		_ = createCmd.MarkFlagRequired(name)
	}

	listCmd.Flags().StringSlice("status", nil, "filter by status (repeatable)")
	listCmd.Flags().StringSlice("grade", nil, "filter by quality grade (repeatable)")
	listCmd.Flags().String("lot", "", "filter by lot reference")
	listCmd.Flags().String("harvest", "", "filter by harvest reference")
	listCmd.Flags().Bool("all", false, "include deactivated microlots")
	listCmd.Flags().Bool("flagged", false, "only microlots with (or, with =false, without) a broken chain")
	listCmd.Flags().String("search", "", "substring match on the microlot code")
	listCmd.Flags().String("sort", "", "sort field, prefix with - for descending (e.g. -created_at)")
	listCmd.Flags().Int("limit", 50, "maximum results")
	listCmd.Flags().Int("offset", 0, "results to skip")
}
