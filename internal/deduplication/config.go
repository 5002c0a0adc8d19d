package deduplication

import "fmt"

// Config holds configuration for the deduplication engine
type Config struct {
	// MaskDigits replaces digit runs in the cause key with '#' before hashing,
	// so "timeout after 30s" and "timeout after 45s" share a signature.
	// Default: true
	MaskDigits bool `koanf:"mask_digits"`

	// MaxConflictRetries bounds the read-after-conflict loop when two writers
	// race to open the same signature
	// Default: 3
	MaxConflictRetries int `koanf:"max_conflict_retries"`

	// PatternScorePerPrior is the pattern-match confidence added for each
	// earlier resolved or closed report with the same signature
	// Default: 10 (two priors reach the component cap)
	PatternScorePerPrior int `koanf:"pattern_score_per_prior"`
}

// DefaultConfig returns the default deduplication configuration
func DefaultConfig() Config {
	return Config{
		MaskDigits:           true,
		MaxConflictRetries:   3,
		PatternScorePerPrior: 10,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.MaxConflictRetries < 1 {
		return fmt.Errorf("max_conflict_retries must be at least 1 (got %d)", c.MaxConflictRetries)
	}
	if c.MaxConflictRetries > 10 {
		return fmt.Errorf("max_conflict_retries too large (got %d, max 10)", c.MaxConflictRetries)
	}
	if c.PatternScorePerPrior < 0 {
		return fmt.Errorf("pattern_score_per_prior cannot be negative (got %d)", c.PatternScorePerPrior)
	}
	if c.PatternScorePerPrior > 20 {
		return fmt.Errorf("pattern_score_per_prior too large (got %d, max 20)", c.PatternScorePerPrior)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{MaskDigits: %t, MaxConflictRetries: %d, PatternScorePerPrior: %d}",
		c.MaskDigits, c.MaxConflictRetries, c.PatternScorePerPrior)
}
