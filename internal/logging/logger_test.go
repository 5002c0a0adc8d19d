package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"console debug", Config{Level: "debug", Format: "console"}, false},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := NewLogger(Config{Level: "info", Format: "yaml"})
	assert.Error(t, err)
}

func TestContextFieldsCarryTraceAndRequest(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	ctx = WithRequestID(ctx, "req-1")

	log := NewTestLogger()
	log.With(zap.String("component", "dedup")).Info(ctx, "report created")

	entries := log.FilterMessage("report created").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, "req-1", fields["request.id"])
	assert.Equal(t, "dedup", fields["component"])
}

func TestAssertHelpers(t *testing.T) {
	log := NewTestLogger()
	log.Warn(context.Background(), "publish failed")
	log.AssertLogged(t, zapcore.WarnLevel, "publish")
	log.AssertNotLogged(t, zapcore.ErrorLevel, "publish")
	assert.Empty(t, ContextFields(context.Background()))
}
