package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/steveyegge/rcagov/internal/analysis"
	"github.com/steveyegge/rcagov/internal/types"
)

// newTable returns a light-style table writing to stdout.
func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

// printJSON writes v as indented JSON.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

// exitOnError prints err and exits 1.
func exitOnError(what string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", what, err)
	teardown()
	os.Exit(1)
}

func priorityColor(p types.Priority) *color.Color {
	switch p {
	case types.PriorityP0:
		return color.New(color.FgRed, color.Bold)
	case types.PriorityP1:
		return color.New(color.FgRed)
	case types.PriorityP2:
		return color.New(color.FgYellow)
	case types.PriorityP3:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgHiBlack)
	}
}

func reportStatusColor(s types.ReportStatus) *color.Color {
	switch s {
	case types.ReportStatusResolved:
		return color.New(color.FgGreen)
	case types.ReportStatusClosedWontFix:
		return color.New(color.FgHiBlack)
	case types.ReportStatusOpen:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func capaStatusColor(s types.CAPAStatus) *color.Color {
	switch s {
	case types.CAPAStatusVerified:
		return color.New(color.FgGreen)
	case types.CAPAStatusRejected, types.CAPAStatusAbandoned:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgCyan)
	}
}

func printReportTable(reports []*types.Report) {
	if len(reports) == 0 {
		fmt.Println(color.New(color.FgHiBlack).Sprint("No reports"))
		return
	}
	t := newTable("ID", "Pri", "Status", "Scope", "Recur", "Detected", "Problem")
	for _, r := range reports {
		t.AppendRow(table.Row{
			r.ID,
			priorityColor(r.SeverityPriority).Sprint(r.SeverityPriority),
			reportStatusColor(r.Status).Sprint(r.Status),
			fmt.Sprintf("%s/%s", r.ScopeType, r.ScopeID),
			r.RecurrenceCount,
			r.DetectedAt.Local().Format("2006-01-02 15:04"),
			truncateString(r.ProblemStatement, 50),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 5, Align: text.AlignRight}})
	t.Render()
}

func printReport(r *types.Report) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold(r.ID), priorityColor(r.SeverityPriority).Sprint(r.SeverityPriority))
	fmt.Printf("  Status:      %s\n", reportStatusColor(r.Status).Sprint(r.Status))
	fmt.Printf("  Scope:       %s %s\n", r.ScopeType, r.ScopeID)
	trigger := string(r.TriggerSource)
	if r.TriggerCode != "" {
		trigger = fmt.Sprintf("%s (%s)", r.TriggerCode, r.TriggerSource)
	}
	fmt.Printf("  Trigger:     T%d %s\n", r.TriggerTier, trigger)
	fmt.Printf("  Severity:    %s impact, %s likelihood\n", r.ImpactLevel, r.LikelihoodLevel)
	fmt.Printf("  Problem:     %s\n", r.ProblemStatement)
	fmt.Printf("  Signature:   %s\n", r.FailureSignature)
	fmt.Printf("  Recurrences: %d\n", r.RecurrenceCount)
	fmt.Printf("  Confidence:  %d (logs %d, evidence %d, pattern %d)\n",
		r.Confidence, r.LogQuality, r.EvidenceStrength, r.PatternMatchScore)
	if r.RootCauseCategory != "" {
		fmt.Printf("  Category:    %s\n", r.RootCauseCategory)
	}
	fmt.Printf("  Detected:    %s\n", formatTime(r.DetectedAt))
	if r.ResolvedAt != nil {
		fmt.Printf("  Resolved:    %s\n", formatTime(*r.ResolvedAt))
	}
}

func printCAPA(c *types.CAPA) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s for %s\n", bold(c.ID), c.RCRID)
	fmt.Printf("  Status:     %s\n", capaStatusColor(c.Status).Sprint(c.Status))
	fmt.Printf("  Category:   %s\n", c.RootCauseCategory)
	fmt.Printf("  Risk:       %d\n", c.RiskScore)
	fmt.Printf("  Corrective: %d action(s)\n", len(c.ProposedChanges.CorrectiveActions))
	fmt.Printf("  Preventive: %d action(s)\n", len(c.ProposedChanges.PreventiveActions))
	if c.ApprovedAt != nil {
		fmt.Printf("  Approved:   %s\n", formatTime(*c.ApprovedAt))
	}
	if c.VerifiedAt != nil {
		fmt.Printf("  Verified:   %s\n", formatTime(*c.VerifiedAt))
	}
	if c.RejectionReason != "" {
		fmt.Printf("  Reason:     %s\n", c.RejectionReason)
	}
}

func recommendationColor(priority string) *color.Color {
	if priority == analysis.PriorityHigh {
		return color.New(color.FgRed)
	}
	return color.New(color.FgYellow)
}

func printAnalysis(a *types.Analysis) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s analysis #%d\n", bold(a.RCRID), a.Attempts)
	fmt.Printf("  Category:  %s\n", a.RootCauseCategory)
	if a.PatternID != "" {
		fmt.Printf("  Pattern:   %s\n", color.New(color.FgMagenta).Sprint(a.PatternID))
	} else {
		fmt.Printf("  Pattern:   %s\n", color.New(color.FgHiBlack).Sprint("none"))
	}
	fmt.Printf("  Analyzed:  %s\n", formatTime(a.AnalyzedAt))

	if len(a.PatternMatches) > 0 {
		fmt.Println()
		t := newTable("Similar report", "Score", "Category", "Resolved")
		for _, m := range a.PatternMatches {
			t.AppendRow(table.Row{m.RCRID, m.Similarity, m.Category, m.Resolved})
		}
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
		t.Render()
	}

	if len(a.ContributingFactors) > 0 {
		fmt.Printf("\n%s\n", color.New(color.FgYellow).Sprint("Contributing factors:"))
		for _, f := range a.ContributingFactors {
			fmt.Printf("  %2d  %s\n", f.Weight, f.Factor)
			fmt.Printf("      %s\n", color.New(color.FgHiBlack).Sprint(f.Evidence))
		}
	}

	if len(a.Recommendations) > 0 {
		fmt.Printf("\n%s\n", color.New(color.FgYellow).Sprint("Recommendations:"))
		for _, r := range a.Recommendations {
			fmt.Printf("  %s %s\n", recommendationColor(r.Priority).Sprintf("[%s]", r.Priority), r.Action)
		}
	}
}

func printEvent(e *types.Event) {
	gray := color.New(color.FgHiBlack)
	magenta := color.New(color.FgMagenta)
	line := fmt.Sprintf("[%s] %s %s %s", e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		e.EntityID, magenta.Sprint(e.EventType), e.Actor)
	if e.OldValue != "" || e.NewValue != "" {
		line += fmt.Sprintf(": %s -> %s", e.OldValue, e.NewValue)
	}
	fmt.Println(line)
	if e.Comment != "" {
		fmt.Printf("  %s\n", gray.Sprint(truncateString(e.Comment, 76)))
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05 MST")
}

func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}

func formatNumber(n int) string {
	if n < 0 {
		return fmt.Sprintf("-%s", formatNumber(-n))
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
