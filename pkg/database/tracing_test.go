package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestQueryTracer_Span(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := QueryTracer{}.Start(context.Background(), "CreateAttempt", "INSERT INTO receipt_delivery_attempts")
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.CreateAttempt", spans[0].Name)

	attrs := map[string]string{}
	for _, a := range spans[0].Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	assert.Equal(t, "postgresql", attrs["db.system"])
	assert.Equal(t, "CreateAttempt", attrs["db.operation"])
}

func TestQueryTracer_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := QueryTracer{}.Start(context.Background(), "ListAttempts", "SELECT")
	end(errors.New("relation does not exist"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events)
}

func TestQueryTracer_SlowQueryLogged(t *testing.T) {
	var buf bytes.Buffer
	tr := QueryTracer{SlowThreshold: time.Nanosecond, Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	_, end := tr.Start(context.Background(), "ListAttempts", "SELECT")
	time.Sleep(time.Millisecond)
	end(nil)

	assert.Contains(t, buf.String(), "slow query detected")
	assert.Contains(t, buf.String(), "ListAttempts")
}

func TestQueryTracer_FastQueryNotLogged(t *testing.T) {
	var buf bytes.Buffer
	tr := QueryTracer{SlowThreshold: time.Hour, Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	_, end := tr.Start(context.Background(), "ListAttempts", "SELECT")
	end(nil)

	assert.Empty(t, buf.String())
}
