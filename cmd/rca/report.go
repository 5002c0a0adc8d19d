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

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Root cause report commands",
}

var reportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Record a failure detection",
	Long: `Record a failure detection. A repeat of an open report with the same
failure signature increments its recurrence count instead of opening a new one.

Either name a registered trigger with --trigger, or give --source and --tier.
A full input document can be read from a JSON file with --from-file.

Examples:
  rca report create --scope-type SD --scope SD-42 --trigger TEST_REGRESSION \
      --problem "checkout e2e fails on payment step"
  rca report create --scope-type PIPELINE --scope ci-881 --source CI_PIPELINE --tier 1 \
      --impact HIGH --likelihood RARE --problem "lint job times out" --log s3://logs/881
  rca report create --from-file detection.json`,
	Run: func(cmd *cobra.Command, args []string) {
		in, err := reportInputFromFlags(cmd)
		exitOnError("invalid input", err)

		res, err := svc.CreateReport(context.Background(), in)
		exitOnError("failed to create report", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(res)
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		if res.Created {
			fmt.Printf("%s Opened %s\n\n", green("✓"), res.Report.ID)
		} else {
			fmt.Printf("%s Recurrence of open report %s (%d occurrences)\n\n",
				color.YellowString("↻"), res.Report.ID, res.Report.RecurrenceCount)
		}
		printReport(res.Report)
	},
}

func reportInputFromFlags(cmd *cobra.Command) (rca.ReportInput, error) {
	var in rca.ReportInput
	if path, _ := cmd.Flags().GetString("from-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return in, err
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return in, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	flags := cmd.Flags()
	setString := func(name string, dest *string) {
		if flags.Changed(name) {
			*dest, _ = flags.GetString(name)
		}
	}
	var scopeType, source, impact, likelihood string
	setString("scope-type", &scopeType)
	setString("scope", &in.ScopeID)
	setString("trigger", &in.TriggerCode)
	setString("source", &source)
	setString("problem", &in.ProblemStatement)
	setString("cause-key", &in.CauseKey)
	setString("impact", &impact)
	setString("likelihood", &likelihood)
	setString("stack-trace", &in.Evidence.StackTrace)
	setString("actor", &in.Actor)
	if scopeType != "" {
		in.ScopeType = types.ScopeType(scopeType)
	}
	if source != "" {
		in.TriggerSource = types.TriggerSource(source)
	}
	if impact != "" {
		in.ImpactLevel = types.ImpactLevel(impact)
	}
	if likelihood != "" {
		in.LikelihoodLevel = types.LikelihoodLevel(likelihood)
	}
	if flags.Changed("tier") {
		in.TriggerTier, _ = flags.GetInt("tier")
	}
	if flags.Changed("log") {
		logs, _ := flags.GetStringSlice("log")
		in.Evidence.Logs = append(in.Evidence.Logs, logs...)
	}
	if flags.Changed("repro") {
		steps, _ := flags.GetStringSlice("repro")
		in.Evidence.ReproSteps = append(in.Evidence.ReproSteps, steps...)
	}
	return in, nil
}

var reportShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show a report, its CAPAs and its audit trail",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		report, err := svc.GetReport(ctx, args[0])
		exitOnError("failed to get report", err)
		capas, err := svc.ListCAPAs(ctx, report.ID)
		exitOnError("failed to list CAPAs", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(struct {
				Report *types.Report `json:"report"`
				CAPAs  []*types.CAPA `json:"capas"`
			}{report, capas})
			return
		}

		printReport(report)
		for _, c := range capas {
			fmt.Println()
			printCAPA(c)
		}

		evs, err := svc.ListEvents(ctx, types.EventFilter{EntityID: report.ID, Limit: 20})
		exitOnError("failed to list events", err)
		if len(evs) > 0 {
			fmt.Printf("\n%s\n", color.New(color.FgYellow).Sprint("History:"))
			for _, e := range evs {
				printEvent(e)
			}
		}
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports",
	Long: `List reports, most recently detected first.

Examples:
  rca report list --open
  rca report list --scope SD-42 --priority P0`,
	Run: func(cmd *cobra.Command, args []string) {
		filter := types.ReportFilter{}
		filter.ScopeID, _ = cmd.Flags().GetString("scope")
		filter.OpenOnly, _ = cmd.Flags().GetBool("open")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			st := types.ReportStatus(v)
			filter.Status = &st
		}
		if v, _ := cmd.Flags().GetString("priority"); v != "" {
			p := types.Priority(v)
			filter.Priority = &p
		}

		reports, err := svc.ListReports(context.Background(), filter)
		exitOnError("failed to list reports", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(reports)
			return
		}
		printReportTable(reports)
	},
}

var reportReviewCmd = &cobra.Command{
	Use:   "review <report-id>",
	Short: "Start root cause review of an OPEN report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		actor, _ := cmd.Flags().GetString("actor")
		report, err := svc.StartReview(context.Background(), args[0], actor)
		exitOnError("failed to start review", err)
		fmt.Printf("%s %s is %s\n", color.GreenString("✓"), report.ID, report.Status)
	},
}

var reportCloseCmd = &cobra.Command{
	Use:   "close <report-id>",
	Short: "Close a report without remediation",
	Long: `Close an OPEN or IN_REVIEW report as CLOSED_WONT_FIX. A reason is required,
and an active CAPA must be rejected or abandoned first.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		actor, _ := cmd.Flags().GetString("actor")
		reason, _ := cmd.Flags().GetString("reason")
		report, err := svc.CloseWontFix(context.Background(), args[0], actor, reason)
		exitOnError("failed to close report", err)
		fmt.Printf("%s %s is %s\n", color.GreenString("✓"), report.ID, report.Status)
	},
}

var reportAnalyzeCmd = &cobra.Command{
	Use:   "analyze <report-id>",
	Short: "Match a report against recent reports of its scope type",
	Long: `Compare a report with the last 10 reports of its scope type and store the
pattern matches, contributing factors and recommendations. Re-running
replaces the stored analysis.

Examples:
  rca report analyze rcr-1234
  rca report analyze rcr-1234 --stored --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			a   *types.Analysis
			err error
		)
		if stored, _ := cmd.Flags().GetBool("stored"); stored {
			a, err = svc.GetAnalysis(context.Background(), args[0])
		} else {
			actor, _ := cmd.Flags().GetString("actor")
			a, err = svc.Analyze(context.Background(), args[0], actor)
		}
		exitOnError("failed to analyze report", err)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(a)
			return
		}
		printAnalysis(a)
	},
}

func init() {
	f := reportCreateCmd.Flags()
	f.String("from-file", "", "Read the detection from a JSON file; flags override its fields")
	f.String("scope-type", "", "Scope type: PIPELINE, SUB_AGENT, RUNTIME or SD")
	f.String("scope", "", "Scope identifier")
	f.String("trigger", "", "Registered trigger code (see: rca triggers list)")
	f.String("source", "", "Trigger source when --trigger is not given")
	f.Int("tier", 0, "Trigger tier 1-4 when --trigger is not given")
	f.String("problem", "", "Problem statement")
	f.String("cause-key", "", "Stable cause key hashed into the failure signature")
	f.String("impact", "", "Impact: LOW, MEDIUM, HIGH or CRITICAL")
	f.String("likelihood", "", "Likelihood: RARE, OCCASIONAL or FREQUENT")
	f.StringSlice("log", nil, "Log reference (repeatable)")
	f.StringSlice("repro", nil, "Reproduction step (repeatable)")
	f.String("stack-trace", "", "Stack trace text")
	f.String("actor", "", "Who is recording the detection")
	f.Bool("json", false, "Output JSON")

	reportShowCmd.Flags().Bool("json", false, "Output JSON")

	lf := reportListCmd.Flags()
	lf.String("scope", "", "Filter by scope identifier")
	lf.String("status", "", "Filter by status")
	lf.String("priority", "", "Filter by priority")
	lf.Bool("open", false, "Only OPEN through FIX_IN_PROGRESS")
	lf.Int("limit", 50, "Maximum reports to list")
	lf.Bool("json", false, "Output JSON")

	reportReviewCmd.Flags().String("actor", "", "Reviewer")
	reportCloseCmd.Flags().String("actor", "", "Who is closing the report")
	reportCloseCmd.Flags().String("reason", "", "Why no fix is needed (required)")

	af := reportAnalyzeCmd.Flags()
	af.String("actor", "", "Who is running the analysis")
	af.Bool("stored", false, "Print the stored analysis without re-running it")
	af.Bool("json", false, "Output JSON")

	reportCmd.AddCommand(reportCreateCmd, reportShowCmd, reportListCmd, reportReviewCmd, reportCloseCmd, reportAnalyzeCmd)
	rootCmd.AddCommand(reportCmd)
}
