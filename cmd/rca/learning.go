package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/steveyegge/rcagov/internal/types"
)

var learningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Learning corpus commands",
	Long: `The learning corpus holds one labeled record per resolved report. Records are
written when a CAPA is verified and are never modified afterwards.`,
}

var learningListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learning records",
	Run: func(cmd *cobra.Command, args []string) {
		filter := types.LearningFilter{}
		if v, _ := cmd.Flags().GetString("category"); v != "" {
			filter.RootCauseCategory = types.RootCauseCategory(v)
		}
		filter.PreventableOnly, _ = cmd.Flags().GetBool("preventable")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		records, err := svc.ListLearningRecords(context.Background(), filter)
		exitOnError("failed to list learning records", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(records)
			return
		}
		if len(records) == 0 {
			fmt.Println(color.New(color.FgHiBlack).Sprint("No learning records"))
			return
		}
		t := newTable("Report", "Label", "Preventable", "Stage", "Detect (h)", "Resolve (h)")
		for _, r := range records {
			preventable := color.New(color.FgHiBlack).Sprint("no")
			if r.Preventable {
				preventable = color.GreenString("yes")
			}
			t.AppendRow(table.Row{
				r.RCRID, r.Label, preventable, r.PreventionStage,
				fmt.Sprintf("%.1f", r.TimeToDetectHours),
				fmt.Sprintf("%.1f", r.TimeToResolveHours),
			})
		}
		t.Render()
	},
}

var learningShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show the learning record for a report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rec, err := svc.GetLearningRecord(context.Background(), args[0])
		exitOnError("failed to get learning record", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(rec)
			return
		}
		bold := color.New(color.Bold).SprintFunc()
		fmt.Printf("%s for %s\n", bold(rec.Label), rec.RCRID)
		fmt.Printf("  Defect class: %s\n", rec.DefectClass)
		fmt.Printf("  Preventable:  %t at %s\n", rec.Preventable, rec.PreventionStage)
		fmt.Printf("  Why:          %s\n", rec.PreventionReason)
		fmt.Printf("  Detect:       %.1fh\n", rec.TimeToDetectHours)
		fmt.Printf("  Resolve:      %.1fh\n", rec.TimeToResolveHours)

		keys := make([]string, 0, len(rec.Features))
		for k := range rec.Features {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("  Features:")
		for _, k := range keys {
			fmt.Printf("    %s = %v\n", k, rec.Features[k])
		}
	},
}

var learningIngestCmd = &cobra.Command{
	Use:   "ingest <report-id>",
	Short: "Ingest a RESOLVED report that has no learning record",
	Long: `Ingest a RESOLVED report into the learning corpus. Verifying a CAPA already
does this; the command is for reports resolved before the corpus existed.
A report that is already in the corpus is left alone.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		actor, _ := cmd.Flags().GetString("actor")
		rec, err := svc.Ingest(context.Background(), args[0], actor)
		exitOnError("failed to ingest report", err)
		fmt.Printf("%s Ingested %s as %s\n", color.GreenString("✓"), rec.RCRID, rec.Label)
	},
}

func init() {
	lf := learningListCmd.Flags()
	lf.String("category", "", "Filter by root cause category")
	lf.Bool("preventable", false, "Only preventable defects")
	lf.Int("limit", 50, "Maximum records to list")
	lf.Bool("json", false, "Output JSON")

	learningShowCmd.Flags().Bool("json", false, "Output JSON")
	learningIngestCmd.Flags().String("actor", "", "Who is ingesting")

	learningCmd.AddCommand(learningListCmd, learningShowCmd, learningIngestCmd)
	rootCmd.AddCommand(learningCmd)
}
