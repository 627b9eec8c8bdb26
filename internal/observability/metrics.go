package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics holds sync engine metrics. Every method is a no-op on a nil
// receiver so callers can run without metrics.
type SyncMetrics struct {
	cycles            metric.Int64Counter
	cycleDuration     metric.Float64Histogram
	recordsPushed     metric.Int64Counter
	recordsPulled     metric.Int64Counter
	recordsIntegrated metric.Int64Counter
	files             metric.Int64Counter
	authAttempts      metric.Int64Counter
}

// NewSyncMetrics creates sync metrics instruments
func NewSyncMetrics() (*SyncMetrics, error) {
	b := newInstruments()
	m := &SyncMetrics{
		cycles:            b.counter("supplysync.sync.cycles", "Total number of sync cycles", "{cycles}"),
		cycleDuration:     b.histogram("supplysync.sync.cycle.duration", "Sync cycle duration in milliseconds", "ms"),
		recordsPushed:     b.counter("supplysync.sync.records.pushed", "Records accepted by the central server", "{records}"),
		recordsPulled:     b.counter("supplysync.sync.records.pulled", "Records received into the sync buffer", "{records}"),
		recordsIntegrated: b.counter("supplysync.sync.records.integrated", "Buffered records applied to local tables", "{records}"),
		files:             b.counter("supplysync.sync.files", "File uploads and downloads", "{files}"),
		authAttempts:      b.counter("supplysync.auth.attempts", "Site authentication attempts", "{attempts}"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordCycle records a finished sync cycle. An empty errorCode is a success.
func (m *SyncMetrics) RecordCycle(ctx context.Context, duration time.Duration, errorCode string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Bool("success", errorCode == ""),
		attribute.String("error_code", errorCode),
	)
	m.cycles.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *SyncMetrics) RecordPushed(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.recordsPushed.Add(ctx, int64(count))
}

func (m *SyncMetrics) RecordPulled(ctx context.Context, scope string, count int) {
	if m == nil {
		return
	}
	m.recordsPulled.Add(ctx, int64(count), metric.WithAttributes(attribute.String("scope", scope)))
}

func (m *SyncMetrics) RecordIntegrated(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.recordsIntegrated.Add(ctx, int64(count))
}

// RecordFileTransfer records an upload or download
func (m *SyncMetrics) RecordFileTransfer(ctx context.Context, direction string, success bool) {
	if m == nil {
		return
	}
	m.files.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.Bool("success", success),
	))
}

// RecordAuthAttempt records a site authentication attempt
func (m *SyncMetrics) RecordAuthAttempt(ctx context.Context, method string, success bool) {
	if m == nil {
		return
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth_method", method),
		attribute.Bool("success", success),
	))
}
