package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/rcagov/internal/types"
)

// ErrUniqueViolation is wrapped by backends when an insert hits a unique index.
// The deduplicator and the learning ingestor rely on it to detect lost races.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrReportClosed is wrapped by IncrementRecurrence when the report was
// resolved or closed after it was read.
var ErrReportClosed = errors.New("report is no longer open")

// Tx is the set of record-level operations available inside one atomic unit of work.
// Lookups return nil, nil when the row does not exist.
type Tx interface {
	// Reports
	GetReport(ctx context.Context, id string) (*types.Report, error)
	FindOpenReportBySignature(ctx context.Context, signature string) (*types.Report, error)
	CountClosedBySignature(ctx context.Context, signature string) (int, error)
	InsertReport(ctx context.Context, report *types.Report) error
	// IncrementRecurrence fails with ErrReportClosed when id is no longer open.
	IncrementRecurrence(ctx context.Context, id string, at time.Time) error
	// UpdateReportStatus applies from -> to only if the row is still in from.
	UpdateReportStatus(ctx context.Context, id string, from, to types.ReportStatus, resolvedAt *time.Time) error
	SetReportCategory(ctx context.Context, id string, category types.RootCauseCategory) error

	// CAPAs
	GetCAPA(ctx context.Context, id string) (*types.CAPA, error)
	GetActiveCAPA(ctx context.Context, rcrID string) (*types.CAPA, error)
	InsertCAPA(ctx context.Context, capa *types.CAPA) error
	// UpdateCAPA persists status, timestamps and notes only if the row is still in from.
	UpdateCAPA(ctx context.Context, capa *types.CAPA, from types.CAPAStatus) error

	// Learning records
	GetLearningRecord(ctx context.Context, rcrID string) (*types.LearningRecord, error)
	InsertLearningRecord(ctx context.Context, record *types.LearningRecord) error

	// Analyses
	GetAnalysis(ctx context.Context, rcrID string) (*types.Analysis, error)
	UpsertAnalysis(ctx context.Context, analysis *types.Analysis) error
	ListPatternCandidates(ctx context.Context, excludeID string, scopeType types.ScopeType, limit int) ([]*types.PatternCandidate, error)

	// Gate queries
	ListGateCandidates(ctx context.Context, scopeID string) ([]*types.GateCandidate, error)
	GetScopeCounts(ctx context.Context, scopeID string) (*types.ScopeCounts, error)

	// Audit trail
	RecordEvent(ctx context.Context, event *types.Event) error
}

// Storage defines the interface for RCA storage backends
type Storage interface {
	// Reports
	GetReport(ctx context.Context, id string) (*types.Report, error)
	ListReports(ctx context.Context, filter types.ReportFilter) ([]*types.Report, error)

	// CAPAs
	GetCAPA(ctx context.Context, id string) (*types.CAPA, error)
	// GetCAPAForReport returns the active CAPA, falling back to the most recent one.
	GetCAPAForReport(ctx context.Context, rcrID string) (*types.CAPA, error)
	ListCAPAs(ctx context.Context, rcrID string) ([]*types.CAPA, error)

	// Learning corpus
	GetLearningRecord(ctx context.Context, rcrID string) (*types.LearningRecord, error)
	ListLearningRecords(ctx context.Context, filter types.LearningFilter) ([]*types.LearningRecord, error)

	// Analyses
	GetAnalysis(ctx context.Context, rcrID string) (*types.Analysis, error)

	// Gate queries
	ListGateCandidates(ctx context.Context, scopeID string) ([]*types.GateCandidate, error)
	GetScopeCounts(ctx context.Context, scopeID string) (*types.ScopeCounts, error)

	// Analytics views
	GetAnalyticsSummary(ctx context.Context) (*types.AnalyticsSummary, error)
	GetRecurrencePatterns(ctx context.Context, minOccurrences, limit int) ([]*types.RecurrencePattern, error)

	// Audit trail
	ListEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error)
	PruneEvents(ctx context.Context, olderThan time.Time, batchSize int) (int, error)

	// WithTx runs fn in a single transaction. The transaction commits only if fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// ReadTx runs fn against one consistent snapshot. fn must not write.
	ReadTx(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Backend selects the registered driver: "sqlite" or "postgres"
	// Default: "sqlite"
	Backend string `koanf:"backend"`

	// Path is the SQLite database file path
	// Default: ".rca/rca.db"
	Path string `koanf:"path"`

	// DSN is the Postgres connection string (ignored for sqlite)
	DSN string `koanf:"dsn"`

	// BusyTimeout bounds how long a SQLite writer waits for the write lock
	// Default: 5s
	BusyTimeout time.Duration `koanf:"busy_timeout"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend:     "sqlite",
		Path:        ".rca/rca.db",
		BusyTimeout: 5 * time.Second,
	}
}

// Opener constructs a backend from a config.
type Opener func(ctx context.Context, cfg *Config) (Storage, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Opener)
)

// Register makes a backend available by name. Backends call it from init.
// Registering the same name twice panics.
func Register(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if open == nil {
		panic("storage: Register opener is nil")
	}
	if _, dup := backends[name]; dup {
		panic("storage: Register called twice for backend " + name)
	}
	backends[name] = open
}

// Backends returns the names of registered backends, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage opens the backend named by cfg.Backend.
// The backend package must be imported for its side effects.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Backend == "" {
		cfg.Backend = "sqlite"
	}
	if cfg.Backend == "sqlite" && cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}

	backendsMu.RLock()
	open, ok := backends[cfg.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q (registered: %v)", cfg.Backend, Backends())
	}
	return open(ctx, cfg)
}
