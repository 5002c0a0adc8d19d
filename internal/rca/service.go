// Package rca is the root cause governance service.
//
// It owns every write to reports, CAPAs and learning records. Each
// operation runs in one short transaction that also appends the audit
// trail; CAPA writes apply the cascade to the owning report inside that
// same transaction. Lifecycle messages are published after commit and a
// failed publish is only logged.
package rca

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/steveyegge/rcagov/internal/analytics"
	"github.com/steveyegge/rcagov/internal/deduplication"
	"github.com/steveyegge/rcagov/internal/events"
	"github.com/steveyegge/rcagov/internal/gates"
	"github.com/steveyegge/rcagov/internal/logging"
	"github.com/steveyegge/rcagov/internal/redact"
	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/triggers"
	"github.com/steveyegge/rcagov/internal/types"
)

// SystemActor is recorded when a caller does not name one.
const SystemActor = "system"

// ErrAlreadyIngested is returned by Ingest when the report is already in the corpus.
var ErrAlreadyIngested = errors.New("learning record already ingested")

// Config holds service dependencies.
type Config struct {
	// Store is required
	Store storage.Storage

	// Triggers must have every tier wired. Nil uses triggers.Builtin().
	Triggers *triggers.Registry

	// Dedup tunes signature normalization and conflict retries
	Dedup deduplication.Config

	// Redactor scrubs evidence before it is written. Nil stores evidence as given.
	Redactor redact.Redactor

	// Publisher receives lifecycle messages after commit. Nil discards them.
	Publisher events.Publisher

	// Logger defaults to a no-op logger
	Logger *logging.Logger

	// TracerProvider defaults to the global provider
	TracerProvider trace.TracerProvider
}

// Service drives the report and CAPA lifecycles.
type Service struct {
	store     storage.Storage
	triggers  *triggers.Registry
	dedup     *deduplication.Deduplicator
	gates     *gates.Evaluator
	analytics *analytics.Reader
	redactor  redact.Redactor
	publisher events.Publisher
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService creates a service. It refuses to start with an unwired trigger registry.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	registry := cfg.Triggers
	if registry == nil {
		registry = triggers.Builtin()
	}
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("trigger registry is not wired: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	dedupCfg := cfg.Dedup
	if dedupCfg == (deduplication.Config{}) {
		dedupCfg = deduplication.DefaultConfig()
	}
	dedup, err := deduplication.New(dedupCfg, logger)
	if err != nil {
		return nil, err
	}

	evaluator, err := gates.NewEvaluator(&gates.Config{Store: cfg.Store})
	if err != nil {
		return nil, err
	}

	redactor := cfg.Redactor
	if redactor == nil {
		redactor = redact.Nop{}
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Service{
		store:     cfg.Store,
		triggers:  registry,
		dedup:     dedup,
		gates:     evaluator,
		analytics: analytics.NewReader(cfg.Store),
		redactor:  redactor,
		publisher: publisher,
		logger:    logger.Named("rca"),
		tracer:    tp.Tracer(instrumentationName),
		now:       time.Now,
	}, nil
}

// Triggers returns the wired registry.
func (s *Service) Triggers() *triggers.Registry {
	return s.triggers
}

// Analytics returns the read-only projection reader.
func (s *Service) Analytics() *analytics.Reader {
	return s.analytics
}

// publish delivers messages after commit. Failures are logged, never returned.
func (s *Service) publish(ctx context.Context, msgs ...*events.Message) {
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if err := s.publisher.Publish(ctx, msg); err != nil {
			PublishFailures.Inc()
			s.logger.Warn(ctx, "failed to publish lifecycle event",
				zap.String("event_type", string(msg.Type)),
				zap.String("entity_id", msg.EntityID),
				zap.Error(err))
		}
	}
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return SystemActor
	}
	return actor
}

func recordEvent(ctx context.Context, tx storage.Tx, entity types.EntityType, id string, eventType types.EventType, actor, oldValue, newValue, comment string) error {
	return tx.RecordEvent(ctx, &types.Event{
		EntityType: entity,
		EntityID:   id,
		EventType:  eventType,
		Actor:      actorOrSystem(actor),
		OldValue:   oldValue,
		NewValue:   newValue,
		Comment:    comment,
	})
}
