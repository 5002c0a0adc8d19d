// Package redact scrubs secrets out of report evidence before it is stored.
//
// Detection uses the gitleaks default rule set. Each detected secret is
// replaced with [REDACTED:<rule-id>] so the evidence keeps its shape.
package redact

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/steveyegge/rcagov/internal/types"
)

// Finding records one redaction.
type Finding struct {
	RuleID string
	Field  string
}

// Redactor scrubs evidence text.
type Redactor interface {
	RedactEvidence(ev types.Evidence) (types.Evidence, []Finding)
}

// Gitleaks redacts with the gitleaks default configuration.
type Gitleaks struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewGitleaks builds a redactor from the gitleaks default rules.
func NewGitleaks() (*Gitleaks, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load gitleaks rules: %w", err)
	}
	return &Gitleaks{detector: detector}, nil
}

// RedactString replaces every detected secret in s.
func (g *Gitleaks) RedactString(s string) (string, []string) {
	if strings.TrimSpace(s) == "" {
		return s, nil
	}

	g.mu.Lock()
	findings := g.detector.DetectString(s)
	g.mu.Unlock()

	if len(findings) == 0 {
		return s, nil
	}

	// Longest secrets first so a secret containing another is replaced whole.
	sort.SliceStable(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})

	rules := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Secret == "" || !strings.Contains(s, f.Secret) {
			continue
		}
		s = strings.ReplaceAll(s, f.Secret, "[REDACTED:"+f.RuleID+"]")
		rules = append(rules, f.RuleID)
	}
	return s, rules
}

// RedactEvidence scrubs the stack trace, logs and repro steps.
func (g *Gitleaks) RedactEvidence(ev types.Evidence) (types.Evidence, []Finding) {
	var out []Finding
	record := func(field string, rules []string) {
		for _, r := range rules {
			out = append(out, Finding{RuleID: r, Field: field})
		}
	}

	var rules []string
	ev.StackTrace, rules = g.RedactString(ev.StackTrace)
	record("stack_trace", rules)

	ev.Logs = g.redactAll("logs", ev.Logs, record)
	ev.ReproSteps = g.redactAll("repro_steps", ev.ReproSteps, record)
	return ev, out
}

func (g *Gitleaks) redactAll(field string, values []string, record func(string, []string)) []string {
	if len(values) == 0 {
		return values
	}
	cleaned := make([]string, len(values))
	for i, v := range values {
		var rules []string
		cleaned[i], rules = g.RedactString(v)
		record(field, rules)
	}
	return cleaned
}

// Nop leaves evidence untouched.
type Nop struct{}

// RedactEvidence returns ev unchanged.
func (Nop) RedactEvidence(ev types.Evidence) (types.Evidence, []Finding) {
	return ev, nil
}
