package observability

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestQueryTarget(t *testing.T) {
	tests := []struct {
		query     string
		operation string
		table     string
	}{
		{"SELECT cursor FROM changelog WHERE cursor > $1", "SELECT", "changelog"},
		{"INSERT INTO sync_log (id) VALUES ($1)", "INSERT", "sync_log"},
		{"UPDATE sync_buffer SET integration_error = $1", "UPDATE", "sync_buffer"},
		{"delete from key_value_store", "DELETE", "key_value_store"},
		{"SELECT 1", "SELECT", ""},
		{"", "UNKNOWN", ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			operation, table := queryTarget(tt.query)
			assert.Equal(t, tt.operation, operation)
			assert.Equal(t, tt.table, table)
		})
	}
}

func TestTraceDB(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	traced, err := NewTraceDB(db)
	require.NoError(t, err)

	_, err = traced.ExecContext(ctx, `CREATE TABLE kv (id TEXT PRIMARY KEY, value INTEGER)`)
	require.NoError(t, err)

	result, err := traced.ExecContext(ctx, `INSERT INTO kv (id, value) VALUES ($1, $2)`, "cursor", 7)
	require.NoError(t, err)
	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	var value int64
	require.NoError(t, traced.QueryRowContext(ctx, `SELECT value FROM kv WHERE id = $1`, "cursor").Scan(&value))
	assert.Equal(t, int64(7), value)

	rows, err := traced.QueryContext(ctx, `SELECT id FROM kv`)
	require.NoError(t, err)
	assert.True(t, rows.Next())
	require.NoError(t, rows.Close())

	_, err = traced.QueryContext(ctx, `SELECT * FROM missing`)
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test", LevelInfo)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	logger.WithField("site", "district").Warnf("push rejected: %s", "bad store")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "push rejected: bad store")
	assert.Contains(t, out, "site=district")

	buf.Reset()
	logger.SetJSON(true)
	logger.WithField("cursor", 12).Error("integration failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "integration failed", entry["msg"])
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, float64(12), entry["cursor"])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelError, ParseLogLevel("error"))
	assert.Equal(t, LevelInfo, ParseLogLevel(""))
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestTraceDB_Spans(t *testing.T) {
	recorder := recordSpans(t)
	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	traced, err := NewTraceDB(db)
	require.NoError(t, err)

	_, err = traced.ExecContext(ctx, `CREATE TABLE kv (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = traced.QueryContext(ctx, `SELECT * FROM missing`)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "DB CREATE", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "DB SELECT missing", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestSyncMetrics_NilIsNoop(t *testing.T) {
	var metrics *SyncMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		metrics.RecordCycle(ctx, time.Second, "")
		metrics.RecordPushed(ctx, 3)
		metrics.RecordPulled(ctx, "central", 3)
		metrics.RecordIntegrated(ctx, 3)
		metrics.RecordFileTransfer(ctx, "upload", true)
		metrics.RecordAuthAttempt(ctx, "basic", false)
	})

	metrics, err := NewSyncMetrics()
	require.NoError(t, err)
	assert.NotPanics(t, func() { metrics.RecordCycle(ctx, time.Second, "CONNECTION_ERROR") })
}

func TestTracingMiddleware(t *testing.T) {
	recorder := recordSpans(t)

	metrics, err := NewHTTPMetrics()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(TracingMiddleware("test"))
	r.Use(MetricsMiddleware(metrics))
	r.Get("/sync/v7/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/sync/v7/files/ref_123", nil)
	req.SetBasicAuth("district", "hash")
	req.Header.Set("X-Sync-Version", "7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /sync/v7/files/{id}", span.Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "district", attrs["sync.site_name"].AsString())
	assert.Equal(t, "7", attrs["sync.protocol_version"].AsString())
	assert.Equal(t, "/sync/v7/files/{id}", attrs["http.route"].AsString())
	assert.Equal(t, int64(404), attrs["http.status_code"].AsInt64())
}

func TestNewConfig(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "")

	cfg := NewConfig("svc", "1.0")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRatio)

	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	cfg = NewConfig("svc", "1.0").WithSite("remote", 4)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 0.25, cfg.SampleRatio)
	assert.Contains(t, cfg.resourceAttributes(), SiteID(4))

	telemetry, err := Initialize(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, telemetry.Shutdown(context.Background()))
}
