package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/steveyegge/rcagov/internal/analytics"
	"github.com/steveyegge/rcagov/internal/types"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Read-only RCA analytics",
}

var analyticsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Report counts by status and priority",
	Run: func(cmd *cobra.Command, args []string) {
		summary, err := svc.Analytics().Summary(context.Background())
		exitOnError("failed to compute summary", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(summary)
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== RCA Summary ==="))
		fmt.Printf("Reports:          %s\n", formatNumber(summary.Total))
		fmt.Printf("Open:             %s\n", formatNumber(summary.Open))
		fmt.Printf("Resolved:         %s (%.0f%%)\n", formatNumber(summary.Resolved), summary.ResolutionRate*100)
		fmt.Printf("Closed won't fix: %s\n", formatNumber(summary.ClosedWontFix))
		blocking := fmt.Sprintf("%d (P0: %d, P1: %d)", summary.BlockingOpen, summary.P0Open, summary.P1Open)
		if summary.BlockingOpen > 0 {
			blocking = color.RedString(blocking)
		}
		fmt.Printf("Blocking open:    %s\n", blocking)
		fmt.Printf("Avg confidence:   %.1f\n\n", summary.AvgConfidence)

		t := newTable("Priority", "Reports")
		for _, p := range []types.Priority{types.PriorityP0, types.PriorityP1, types.PriorityP2, types.PriorityP3, types.PriorityP4} {
			t.AppendRow(table.Row{priorityColor(p).Sprint(p), summary.ByPriority[p]})
		}
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
		t.Render()
	},
}

var analyticsRecurrenceCmd = &cobra.Command{
	Use:   "recurrence",
	Short: "Failure signatures that keep coming back",
	Run: func(cmd *cobra.Command, args []string) {
		var q analytics.RecurrenceQuery
		q.MinOccurrences, _ = cmd.Flags().GetInt("min")
		q.Limit, _ = cmd.Flags().GetInt("limit")

		patterns, err := svc.Analytics().Recurrence(context.Background(), q)
		exitOnError("failed to compute recurrence", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(patterns)
			return
		}
		if len(patterns) == 0 {
			fmt.Println(color.New(color.FgHiBlack).Sprint("No recurring failures"))
			return
		}
		t := newTable("Signature", "Scope", "Reports", "Occurrences", "Open", "Last seen")
		for _, p := range patterns {
			t.AppendRow(table.Row{
				truncateString(p.FailureSignature, 16), p.ScopeType,
				p.ReportCount, p.OccurrenceCount, p.OpenCount,
				p.LastDetectedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
		})
		t.Render()
	},
}

func init() {
	analyticsSummaryCmd.Flags().Bool("json", false, "Output JSON")

	rf := analyticsRecurrenceCmd.Flags()
	rf.Int("min", analytics.DefaultMinOccurrences, "Minimum occurrences across reports")
	rf.Int("limit", analytics.DefaultRecurrenceLimit, "Maximum signatures to list")
	rf.Bool("json", false, "Output JSON")

	analyticsCmd.AddCommand(analyticsSummaryCmd, analyticsRecurrenceCmd)
	rootCmd.AddCommand(analyticsCmd)
}
