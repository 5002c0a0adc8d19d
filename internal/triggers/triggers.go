// Package triggers is the registry of failure detectors that may open a
// root cause report.
//
// Triggers are grouped in four tiers, from 1 (coarse: a whole pipeline or
// gate failed) to 4 (fine: a drift or flake inside one component). The
// engine is only considered wired when every tier has at least
// MinTriggersPerTier entries.
package triggers

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/rcagov/internal/types"
)

// MinTriggersPerTier is the wiring requirement checked by Validate.
const MinTriggersPerTier = 3

// Trigger describes one detector.
type Trigger struct {
	Code              string                `yaml:"code" json:"code"`
	Tier              int                   `yaml:"tier" json:"tier"`
	Source            types.TriggerSource   `yaml:"source" json:"source"`
	Description       string                `yaml:"description" json:"description"`
	DefaultImpact     types.ImpactLevel     `yaml:"default_impact,omitempty" json:"default_impact,omitempty"`
	DefaultLikelihood types.LikelihoodLevel `yaml:"default_likelihood,omitempty" json:"default_likelihood,omitempty"`
}

// Validate checks a single trigger definition.
func (t Trigger) Validate() error {
	if strings.TrimSpace(t.Code) == "" {
		return fmt.Errorf("trigger code is required")
	}
	if t.Tier < types.MinTriggerTier || t.Tier > types.MaxTriggerTier {
		return fmt.Errorf("trigger %s: tier must be between %d and %d (got %d)",
			t.Code, types.MinTriggerTier, types.MaxTriggerTier, t.Tier)
	}
	if !t.Source.IsValid() {
		return fmt.Errorf("trigger %s: invalid source %q", t.Code, t.Source)
	}
	if prefix := fmt.Sprintf("T%d:", t.Tier); !strings.HasPrefix(t.Description, prefix) {
		return fmt.Errorf("trigger %s: description must start with %q", t.Code, prefix)
	}
	if t.DefaultImpact != "" && !t.DefaultImpact.IsValid() {
		return fmt.Errorf("trigger %s: invalid default impact %q", t.Code, t.DefaultImpact)
	}
	if t.DefaultLikelihood != "" && !t.DefaultLikelihood.IsValid() {
		return fmt.Errorf("trigger %s: invalid default likelihood %q", t.Code, t.DefaultLikelihood)
	}
	return nil
}

// Registry holds triggers by code. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	triggers map[string]Trigger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{triggers: make(map[string]Trigger)}
}

// Register adds or replaces a trigger.
func (r *Registry) Register(t Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[t.Code] = t
	return nil
}

// Lookup returns the trigger registered under code.
func (r *Registry) Lookup(code string) (Trigger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.triggers[code]
	return t, ok
}

// ByTier returns the triggers of one tier, sorted by code.
func (r *Registry) ByTier(tier int) []Trigger {
	var out []Trigger
	for _, t := range r.All() {
		if t.Tier == tier {
			out = append(out, t)
		}
	}
	return out
}

// All returns every trigger sorted by tier then code.
func (r *Registry) All() []Trigger {
	r.mu.RLock()
	out := make([]Trigger, 0, len(r.triggers))
	for _, t := range r.triggers {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Validate fails unless every tier has at least MinTriggersPerTier triggers.
func (r *Registry) Validate() error {
	var short []string
	for tier := types.MinTriggerTier; tier <= types.MaxTriggerTier; tier++ {
		if n := len(r.ByTier(tier)); n < MinTriggersPerTier {
			short = append(short, fmt.Sprintf("T%d has %d", tier, n))
		}
	}
	if len(short) > 0 {
		return fmt.Errorf("trigger registry not wired: need %d triggers per tier (%s)",
			MinTriggersPerTier, strings.Join(short, ", "))
	}
	return nil
}

// file is the YAML layout accepted by Load and LoadFile.
type file struct {
	Triggers []Trigger `yaml:"triggers"`
}

// Load merges YAML trigger definitions into r, replacing built-ins with the
// same code.
func (r *Registry) Load(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse trigger definitions: %w", err)
	}
	for _, t := range f.Triggers {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile returns the built-in registry with the definitions in path merged over it.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger file: %w", err)
	}
	r := Builtin()
	if err := r.Load(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
