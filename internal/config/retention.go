package config

import (
	"fmt"
)

// RetentionConfig holds configuration for audit event retention and cleanup.
// Reports, CAPAs and learning records are never pruned.
type RetentionConfig struct {
	// EventDays is the retention period for audit events (in days)
	// Events older than this are eligible for deletion
	// Default: 90, Range: 1-3650
	EventDays int `koanf:"event_days"`

	// BatchSize is the number of events to delete per transaction
	// Larger batches = faster cleanup but longer locks
	// Default: 1000, Range: 100-10000
	BatchSize int `koanf:"batch_size"`

	// IntervalHours is how often `rca serve` runs cleanup (in hours)
	// Default: 24, Range: 1-168 (1 week)
	IntervalHours int `koanf:"interval_hours"`

	// Enabled controls whether `rca serve` prunes on a schedule.
	// `rca events prune` works either way.
	// Default: true
	Enabled bool `koanf:"enabled"`
}

// DefaultRetentionConfig returns the default retention configuration.
//
// The audit trail backs compliance review of CAPAs, so the window is
// longer than a typical debugging history.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		EventDays:     90,
		BatchSize:     1000,
		IntervalHours: 24,
		Enabled:       true,
	}
}

// Validate checks if the configuration has valid values
func (c RetentionConfig) Validate() error {
	if c.EventDays < 1 || c.EventDays > 3650 {
		return fmt.Errorf("event_days must be between 1 and 3650 (got %d)", c.EventDays)
	}

	if c.BatchSize < 100 {
		return fmt.Errorf("batch_size must be at least 100 (got %d)", c.BatchSize)
	}
	if c.BatchSize > 10000 {
		return fmt.Errorf("batch_size too large (got %d, max 10000)", c.BatchSize)
	}

	if c.IntervalHours < 1 {
		return fmt.Errorf("interval_hours must be at least 1 (got %d)", c.IntervalHours)
	}
	if c.IntervalHours > 168 {
		return fmt.Errorf("interval_hours too large (got %d, max 168)", c.IntervalHours)
	}

	return nil
}

// String returns a human-readable representation of the config
func (c RetentionConfig) String() string {
	return fmt.Sprintf("RetentionConfig{EventDays: %d, BatchSize: %d, Interval: %dh, Enabled: %t}",
		c.EventDays, c.BatchSize, c.IntervalHours, c.Enabled)
}
