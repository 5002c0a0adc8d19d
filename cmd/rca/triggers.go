package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/steveyegge/rcagov/internal/triggers"
)

var triggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "Trigger registry commands",
}

var triggersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered triggers by tier",
	Run: func(cmd *cobra.Command, args []string) {
		all := svc.Triggers().All()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(all)
			return
		}
		t := newTable("Tier", "Code", "Source", "Impact", "Likelihood", "Description")
		for _, tr := range all {
			t.AppendRow(table.Row{
				fmt.Sprintf("T%d", tr.Tier), tr.Code, tr.Source,
				tr.DefaultImpact, tr.DefaultLikelihood, truncateString(tr.Description, 48),
			})
		}
		t.Render()
	},
}

var triggersValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a trigger registry file",
	Long: `Check a trigger registry file: every entry must be well formed and each of
the four tiers needs at least three triggers. The service refuses to start
with a registry that fails this check.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"offline": "true"},
	Run: func(cmd *cobra.Command, args []string) {
		registry, err := triggers.LoadFile(args[0])
		exitOnError("failed to load triggers", err)
		exitOnError("registry is not wired", registry.Validate())

		fmt.Printf("%s %s: %d triggers\n", color.GreenString("✓"), args[0], len(registry.All()))
		for tier := 1; tier <= 4; tier++ {
			fmt.Printf("  T%d: %d\n", tier, len(registry.ByTier(tier)))
		}
	},
}

func init() {
	triggersListCmd.Flags().Bool("json", false, "Output JSON")
	triggersCmd.AddCommand(triggersListCmd, triggersValidateCmd)
	rootCmd.AddCommand(triggersCmd)
}
