package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/rcagov/internal/types"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Audit trail commands",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		filter := types.EventFilter{}
		filter.EntityID, _ = cmd.Flags().GetString("entity")
		if v, _ := cmd.Flags().GetString("type"); v != "" {
			filter.EntityType = types.EntityType(v)
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		evs, err := svc.ListEvents(context.Background(), filter)
		exitOnError("failed to list events", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(evs)
			return
		}
		if len(evs) == 0 {
			fmt.Println(color.New(color.FgHiBlack).Sprint("No events"))
			return
		}
		for _, e := range evs {
			printEvent(e)
		}
	},
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit events past the retention window",
	Long: `Delete audit events older than the retention window, in batches.
Reports, CAPAs and learning records are never deleted.

Defaults come from the retention section of the config.

Examples:
  rca events prune
  rca events prune --days 30`,
	Run: func(cmd *cobra.Command, args []string) {
		days := cfg.Retention.EventDays
		if cmd.Flags().Changed("days") {
			days, _ = cmd.Flags().GetInt("days")
		}
		batch := cfg.Retention.BatchSize
		if cmd.Flags().Changed("batch-size") {
			batch, _ = cmd.Flags().GetInt("batch-size")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		fmt.Printf("Pruning events older than %d days (batch %s)...\n", days, formatNumber(batch))
		start := time.Now()
		deleted, err := svc.PruneEvents(ctx, days, batch)
		exitOnError("event cleanup failed", err)

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Cleanup complete\n", green("✓"))
		fmt.Printf("  Events deleted: %s\n", formatNumber(deleted))
		fmt.Printf("  Time taken: %s\n", time.Since(start).Round(time.Millisecond))
	},
}

func init() {
	lf := eventsListCmd.Flags()
	lf.String("entity", "", "Filter by entity id")
	lf.String("type", "", "Filter by entity type: report, capa or learning")
	lf.Int("limit", 50, "Maximum events to list")
	lf.Bool("json", false, "Output JSON")

	eventsPruneCmd.Flags().Int("days", 0, "Retention window in days (default: retention.event_days)")
	eventsPruneCmd.Flags().Int("batch-size", 0, "Events per delete transaction (default: retention.batch_size)")

	eventsCmd.AddCommand(eventsListCmd, eventsPruneCmd)
	rootCmd.AddCommand(eventsCmd)
}
