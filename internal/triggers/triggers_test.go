package triggers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/rcagov/internal/types"
)

func TestBuiltinIsWired(t *testing.T) {
	r := Builtin()
	require.NoError(t, r.Validate())
	assert.Len(t, r.All(), 12)

	for tier := types.MinTriggerTier; tier <= types.MaxTriggerTier; tier++ {
		got := r.ByTier(tier)
		assert.Len(t, got, 3, "tier %d", tier)
		for _, trig := range got {
			assert.True(t, strings.HasPrefix(trig.Description, "T"), trig.Code)
			assert.Equal(t, tier, trig.Tier)
		}
	}

	trig, ok := r.Lookup("TEST_REGRESSION")
	require.True(t, ok)
	assert.Equal(t, types.TriggerTestFailure, trig.Source)
	_, ok = r.Lookup("NOPE")
	assert.False(t, ok)
}

func TestValidateReportsShortTiers(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Trigger{Code: "A", Tier: 2, Source: types.TriggerManual, Description: "T2: a"}))
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "T1 has 0")
	assert.Contains(t, err.Error(), "T2 has 1")
}

func TestTriggerValidate(t *testing.T) {
	tests := []struct {
		name string
		trig Trigger
		want string
	}{
		{"missing code", Trigger{Tier: 1, Source: types.TriggerManual, Description: "T1: x"}, "code is required"},
		{"tier out of range", Trigger{Code: "X", Tier: 5, Source: types.TriggerManual, Description: "T5: x"}, "tier must be"},
		{"bad source", Trigger{Code: "X", Tier: 1, Source: "CRON", Description: "T1: x"}, "invalid source"},
		{"wrong prefix", Trigger{Code: "X", Tier: 2, Source: types.TriggerManual, Description: "T1: x"}, `start with "T2:"`},
		{"bad impact", Trigger{Code: "X", Tier: 1, Source: types.TriggerManual, Description: "T1: x", DefaultImpact: "HUGE"}, "default impact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trig.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFileMergesOverBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	content := `
triggers:
  - code: FLAKY_TEST
    tier: 4
    source: TEST_FAILURE
    description: "T4: Retry-masked flake"
    default_impact: LOW
  - code: LINT_DRIFT
    tier: 4
    source: CI_PIPELINE
    description: "T4: Lint warnings above budget"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, r.All(), 13)
	assert.Len(t, r.ByTier(4), 4)

	flaky, _ := r.Lookup("FLAKY_TEST")
	assert.Equal(t, "T4: Retry-masked flake", flaky.Description)
	assert.Equal(t, types.ImpactLow, flaky.DefaultImpact)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("triggers:\n  - code: X\n    tier: 9\n"), 0644))
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "tier must be")
}
