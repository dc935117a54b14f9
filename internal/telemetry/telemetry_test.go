package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_NoneIsNoop(t *testing.T) {
	shutdown, err := Init("skillwave", "test", Config{Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	shutdown, err = Init("skillwave", "test", Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init("skillwave", "test", Config{Exporter: "stdout", Writer: &buf})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Errors(t *testing.T) {
	_, err := Init("skillwave", "test", Config{Exporter: "zipkin"})
	assert.ErrorContains(t, err, "unknown telemetry exporter")

	_, err = Init("skillwave", "test", Config{Exporter: "otlp"})
	assert.ErrorContains(t, err, "endpoint is required")
}

func TestNewLogger_JSONIncludesTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside span", "unit", "a")
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "inside span", rec["msg"])
	assert.Equal(t, "a", rec["unit"])
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
}

func TestNewLogger_NoSpanNoTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "text")

	logger.Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_WithAttrsKeepsTraceHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "text").With("component", "engine")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.InfoContext(ctx, "hello")
	out := buf.String()
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "trace_id=")
}

func TestConfigureSlog_SetsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	ConfigureSlog(&buf, "info", "text")
	slog.Info("via default")
	assert.True(t, strings.Contains(buf.String(), "via default"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestUnitAttributes(t *testing.T) {
	attrs := UnitAttributes("a", strings.Repeat("f", 64))
	assertAttributes(t, attrs, map[string]any{
		AttrUnitID:   "a",
		AttrUnitHash: "ffffffffffff",
	})

	assert.Len(t, UnitAttributes("a", ""), 1)
}

func TestOutcomeAttributes(t *testing.T) {
	assertAttributes(t, OutcomeAttributes("failed", "timeout"), map[string]any{
		AttrUnitOutcome: "failed",
		AttrUnitFailure: "timeout",
	})
	assert.Len(t, OutcomeAttributes("executed", ""), 1)
}

func TestRunAndWaveAttributes(t *testing.T) {
	assertAttributes(t, RunAttributes("run-1", 4, 3), map[string]any{
		AttrRunID:    "run-1",
		AttrRunUnits: 4,
		AttrRunWaves: 3,
	})
	assertAttributes(t, WaveAttributes(1, 2), map[string]any{
		AttrWaveIndex: 1,
		AttrWaveUnits: 2,
	})
	assertAttributes(t, DecisionAttributes("skip", "cache-hit"), map[string]any{
		AttrDecisionAction: "skip",
		AttrDecisionReason: "cache-hit",
	})
}

func assertAttributes(t *testing.T, attrs []attribute.KeyValue, expected map[string]any) {
	t.Helper()
	require.Len(t, attrs, len(expected))
	for _, kv := range attrs {
		want, ok := expected[string(kv.Key)]
		require.True(t, ok, "unexpected attribute %s", kv.Key)
		switch w := want.(type) {
		case string:
			assert.Equal(t, w, kv.Value.AsString(), string(kv.Key))
		case int:
			assert.Equal(t, int64(w), kv.Value.AsInt64(), string(kv.Key))
		case bool:
			assert.Equal(t, w, kv.Value.AsBool(), string(kv.Key))
		}
	}
}
