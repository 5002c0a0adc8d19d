package deduplication

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/rcagov/internal/types"
)

func TestNormalizeCause(t *testing.T) {
	tests := []struct {
		in         string
		maskDigits bool
		want       string
	}{
		{"  Timeout   after\t30s ", true, "timeout after #s"},
		{"Timeout after 30s", false, "timeout after 30s"},
		{"host 10.0.0.12 refused", true, "host #.#.#.# refused"},
		{"", true, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCause(tt.in, tt.maskDigits), "input %q", tt.in)
	}
}

func TestSignature(t *testing.T) {
	a := Signature(types.ScopePipeline, "pipe-1", "Timeout after 30s")
	b := Signature(types.ScopePipeline, "pipe-1", "timeout   after 45s")
	assert.Equal(t, a, b, "digit masking and whitespace collapse should match")
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Signature(types.ScopeRuntime, "pipe-1", "Timeout after 30s"), "scope type is part of the key")
	assert.NotEqual(t, a, Signature(types.ScopePipeline, "pipe-2", "Timeout after 30s"), "scope id is part of the key")

	d, err := New(Config{MaskDigits: false, MaxConflictRetries: 1}, nil)
	assert.NoError(t, err)
	assert.NotEqual(t,
		d.Signature(types.ScopePipeline, "pipe-1", "Timeout after 30s"),
		d.Signature(types.ScopePipeline, "pipe-1", "Timeout after 45s"))
}
