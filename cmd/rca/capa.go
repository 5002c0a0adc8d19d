package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/rcagov/internal/rca"
	"github.com/steveyegge/rcagov/internal/types"
)

var capaCmd = &cobra.Command{
	Use:   "capa",
	Short: "Corrective and preventive action commands",
	Long: `Manage CAPAs. Every CAPA transition moves its report along with it:

  create   report -> CAPA_PENDING
  approve  report -> CAPA_APPROVED
  start    report -> FIX_IN_PROGRESS
  verify   report -> RESOLVED (and the report enters the learning corpus)
  reject   report -> IN_REVIEW
  abandon  report -> IN_REVIEW`,
}

var capaCreateCmd = &cobra.Command{
	Use:   "create <report-id>",
	Short: "Attach a CAPA to a report",
	Long: `Attach a PENDING CAPA to an OPEN or IN_REVIEW report that has no active CAPA.

Proposed changes and the verification plan are easiest to give as JSON:

  {
    "proposed_changes": {
      "corrective_actions": [{"description": "guard nil order", "affected_files": ["checkout.go"]}],
      "preventive_actions": [{"description": "add payment e2e to smoke suite"}]
    },
    "verification_plan": {"success_criteria": ["e2e green 10 runs in a row"]}
  }

Examples:
  rca capa create rcr-1234 --from-file capa.json
  rca capa create rcr-1234 --corrective "guard nil order" --criteria "e2e green"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		in, err := capaInputFromFlags(cmd, args[0])
		exitOnError("invalid input", err)

		capa, err := svc.CreateCAPA(context.Background(), in)
		exitOnError("failed to create CAPA", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(capa)
			return
		}
		fmt.Printf("%s Created %s\n\n", color.GreenString("✓"), capa.ID)
		printCAPA(capa)
	},
}

func capaInputFromFlags(cmd *cobra.Command, rcrID string) (rca.CAPAInput, error) {
	var in rca.CAPAInput
	if path, _ := cmd.Flags().GetString("from-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return in, err
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return in, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	in.RCRID = rcrID

	flags := cmd.Flags()
	if v, _ := flags.GetString("category"); v != "" {
		in.RootCauseCategory = types.RootCauseCategory(v)
	}
	if flags.Changed("risk") {
		in.RiskScore, _ = flags.GetInt("risk")
	}
	if flags.Changed("affected-sds") {
		in.AffectedSDCount, _ = flags.GetInt("affected-sds")
	}
	corrective, _ := flags.GetStringSlice("corrective")
	for _, d := range corrective {
		in.ProposedChanges.CorrectiveActions = append(in.ProposedChanges.CorrectiveActions, types.Action{Description: d})
	}
	preventive, _ := flags.GetStringSlice("preventive")
	for _, d := range preventive {
		in.ProposedChanges.PreventiveActions = append(in.ProposedChanges.PreventiveActions, types.Action{Description: d})
	}
	criteria, _ := flags.GetStringSlice("criteria")
	in.VerificationPlan.SuccessCriteria = append(in.VerificationPlan.SuccessCriteria, criteria...)
	in.Actor, _ = flags.GetString("actor")
	return in, nil
}

// capaTransitionCmd builds one of the CAPA transition subcommands.
func capaTransitionCmd(use, short string, needsReason bool, apply func(ctx context.Context, id, actor, text string) (*types.CAPA, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <capa-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			actor, _ := cmd.Flags().GetString("actor")
			var text string
			if needsReason {
				text, _ = cmd.Flags().GetString("reason")
			} else if cmd.Flags().Lookup("notes") != nil {
				text, _ = cmd.Flags().GetString("notes")
			}

			capa, err := apply(context.Background(), args[0], actor, text)
			exitOnError("failed to "+use+" CAPA", err)

			report, err := svc.GetReport(context.Background(), capa.RCRID)
			exitOnError("failed to get report", err)
			fmt.Printf("%s %s is %s; report %s is %s\n", color.GreenString("✓"),
				capa.ID, capaStatusColor(capa.Status).Sprint(capa.Status),
				report.ID, reportStatusColor(report.Status).Sprint(report.Status))
		},
	}
	cmd.Flags().String("actor", "", "Who is acting")
	if needsReason {
		cmd.Flags().String("reason", "", "Reason recorded on the CAPA")
	}
	return cmd
}

func init() {
	f := capaCreateCmd.Flags()
	f.String("from-file", "", "Read proposed changes and verification plan from a JSON file")
	f.String("category", "", "Root cause category (inferred from the report when empty)")
	f.Int("risk", 0, "Risk score 0-100")
	f.Int("affected-sds", 0, "Number of SDs the fix touches (default 1)")
	f.StringSlice("corrective", nil, "Corrective action (repeatable)")
	f.StringSlice("preventive", nil, "Preventive action (repeatable)")
	f.StringSlice("criteria", nil, "Verification success criterion (repeatable)")
	f.String("actor", "", "Who is proposing the CAPA")
	f.Bool("json", false, "Output JSON")

	approve := capaTransitionCmd("approve", "Approve a PENDING CAPA", false,
		func(ctx context.Context, id, actor, _ string) (*types.CAPA, error) {
			return svc.Approve(ctx, id, actor)
		})
	start := capaTransitionCmd("start", "Start work on an APPROVED CAPA", false,
		func(ctx context.Context, id, actor, _ string) (*types.CAPA, error) {
			return svc.StartWork(ctx, id, actor)
		})
	verify := capaTransitionCmd("verify", "Verify an IN_PROGRESS CAPA and resolve its report", false,
		func(ctx context.Context, id, actor, notes string) (*types.CAPA, error) {
			return svc.Verify(ctx, id, actor, notes)
		})
	verify.Flags().String("notes", "", "Verification notes")
	reject := capaTransitionCmd("reject", "Reject a PENDING CAPA", true,
		func(ctx context.Context, id, actor, reason string) (*types.CAPA, error) {
			return svc.Reject(ctx, id, actor, reason)
		})
	abandon := capaTransitionCmd("abandon", "Abandon an active CAPA", true,
		func(ctx context.Context, id, actor, reason string) (*types.CAPA, error) {
			return svc.Abandon(ctx, id, actor, reason)
		})

	capaCmd.AddCommand(capaCreateCmd, approve, start, verify, reject, abandon)
	rootCmd.AddCommand(capaCmd)
}
