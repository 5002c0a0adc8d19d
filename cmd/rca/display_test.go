package main

import (
	"testing"

	"github.com/fatih/color"

	"github.com/steveyegge/rcagov/internal/analysis"
	"github.com/steveyegge/rcagov/internal/gates"
	"github.com/steveyegge/rcagov/internal/types"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "0"},
		{42, "42"},
		{999, "999"},
		{1000, "1,000"},
		{10001, "10,001"},
		{999999, "999,999"},
		{1000000, "1,000,000"},
		{1234567, "1,234,567"},
		{-1000, "-1,000"},
	}

	for _, tt := range tests {
		result := formatNumber(tt.input)
		if result != tt.expected {
			t.Errorf("formatNumber(%d) = %s; want %s", tt.input, result, tt.expected)
		}
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"line one\nline two", 20, "line one line two"},
		{"abcdef", 3, "..."},
	}

	for _, tt := range tests {
		result := truncateString(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncateString(%q, %d) = %q; want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestGateExitCode(t *testing.T) {
	if code := gateExitCode(&gates.Result{Pass: true}); code != 0 {
		t.Errorf("passing gate exit code = %d; want 0", code)
	}
	blocked := &gates.Result{
		Pass:      false,
		OpenCount: 1,
		Blocking:  []gates.BlockingReport{{ID: "rcr-1", Priority: types.PriorityP0}},
	}
	if code := gateExitCode(blocked); code != 1 {
		t.Errorf("blocked gate exit code = %d; want 1", code)
	}
}

func TestPriorityColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = prev }()

	// Blocking priorities must stand out from the rest.
	p0 := priorityColor(types.PriorityP0).Sprint("x")
	p3 := priorityColor(types.PriorityP3).Sprint("x")
	if p0 == p3 {
		t.Errorf("P0 and P3 rendered identically: %q", p0)
	}
	if p0 == "x" {
		t.Errorf("P0 rendered without color")
	}
}

func TestRecommendationColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = prev }()

	high := recommendationColor(analysis.PriorityHigh).Sprint("x")
	medium := recommendationColor(analysis.PriorityMedium).Sprint("x")
	if high == medium {
		t.Errorf("HIGH and MEDIUM rendered identically: %q", high)
	}
}
