package config

import (
	"strings"
	"testing"
)

func TestRetentionConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RetentionConfig)
		wantErr string
	}{
		{name: "defaults", mutate: func(*RetentionConfig) {}},
		{name: "minimum values", mutate: func(c *RetentionConfig) {
			c.EventDays = 1
			c.BatchSize = 100
			c.IntervalHours = 1
		}},
		{name: "maximum values", mutate: func(c *RetentionConfig) {
			c.EventDays = 3650
			c.BatchSize = 10000
			c.IntervalHours = 168
		}},
		{name: "disabled is still validated", mutate: func(c *RetentionConfig) {
			c.Enabled = false
			c.EventDays = 0
		}, wantErr: "event_days must be between 1 and 3650"},
		{name: "days too large", mutate: func(c *RetentionConfig) { c.EventDays = 3651 }, wantErr: "event_days"},
		{name: "batch too small", mutate: func(c *RetentionConfig) { c.BatchSize = 99 }, wantErr: "batch_size must be at least 100"},
		{name: "batch too large", mutate: func(c *RetentionConfig) { c.BatchSize = 10001 }, wantErr: "batch_size too large"},
		{name: "interval zero", mutate: func(c *RetentionConfig) { c.IntervalHours = 0 }, wantErr: "interval_hours must be at least 1"},
		{name: "interval too large", mutate: func(c *RetentionConfig) { c.IntervalHours = 169 }, wantErr: "interval_hours too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRetentionConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestRetentionConfigString(t *testing.T) {
	got := DefaultRetentionConfig().String()
	want := "RetentionConfig{EventDays: 90, BatchSize: 1000, Interval: 24h, Enabled: true}"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
