package observability

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLength = 500

// dbSystem is reported as db.system on database spans
var dbSystem = "sqlite"

// SetDBSystem sets the db.system attribute, "sqlite" or "postgresql"
func SetDBSystem(name string) {
	dbSystem = name
}

// StartDBSpan starts a client span for one statement
func StartDBSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	name := "DB " + operation
	if table != "" {
		name += " " + table
	}
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", dbSystem),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		),
	)
}

// DatabaseMetrics counts and times statements by operation and table
type DatabaseMetrics struct {
	queryDuration metric.Float64Histogram
	queryCount    metric.Int64Counter
	errorCount    metric.Int64Counter
}

// NewDatabaseMetrics creates database metrics instruments
func NewDatabaseMetrics() (*DatabaseMetrics, error) {
	b := newInstruments()
	m := &DatabaseMetrics{
		queryDuration: b.histogram("db.query.duration", "Database query duration in milliseconds", "ms"),
		queryCount:    b.counter("db.query.count", "Total number of database queries", "{queries}"),
		errorCount:    b.counter("db.error.count", "Total number of database errors", "{errors}"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordQuery records one statement
func (m *DatabaseMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
	)
	m.queryCount.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.errorCount.Add(ctx, 1, attrs)
	}
}

// TraceDB wraps sql.DB with a span and metrics per statement. It satisfies
// the repository DBTX interface so read-side repositories can use it directly.
type TraceDB struct {
	db      *sql.DB
	metrics *DatabaseMetrics
}

// NewTraceDB creates a traced database wrapper
func NewTraceDB(db *sql.DB) (*TraceDB, error) {
	metrics, err := NewDatabaseMetrics()
	if err != nil {
		return nil, err
	}
	return &TraceDB{db: db, metrics: metrics}, nil
}

// statement tracks one traced call
type statement struct {
	db        *TraceDB
	ctx       context.Context
	span      trace.Span
	operation string
	table     string
	started   time.Time
}

func (t *TraceDB) begin(ctx context.Context, query string) *statement {
	operation, table := queryTarget(query)
	ctx, span := StartDBSpan(ctx, operation, table)
	if len(query) > maxStatementLength {
		query = query[:maxStatementLength] + "..."
	}
	span.SetAttributes(attribute.String("db.statement", query))
	return &statement{db: t, ctx: ctx, span: span, operation: operation, table: table, started: time.Now()}
}

func (s *statement) end(err error) {
	duration := time.Since(s.started)
	if err != nil {
		RecordError(s.span, err)
	} else {
		SetSuccess(s.span)
	}
	s.span.SetAttributes(attribute.Int64("db.query_duration_ms", duration.Milliseconds()))
	s.span.End()
	s.db.metrics.RecordQuery(s.ctx, s.operation, s.table, duration, err)
}

// QueryContext runs a traced query
func (t *TraceDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	s := t.begin(ctx, query)
	rows, err := t.db.QueryContext(s.ctx, query, args...)
	s.end(err)
	return rows, err
}

// ExecContext runs a traced statement and records the affected row count
func (t *TraceDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s := t.begin(ctx, query)
	result, err := t.db.ExecContext(s.ctx, query, args...)
	if err == nil {
		if n, raErr := result.RowsAffected(); raErr == nil {
			s.span.SetAttributes(attribute.Int64("db.rows_affected", n))
		}
	}
	s.end(err)
	return result, err
}

// QueryRowContext runs a traced single-row query. The span ends before the
// row is scanned, so scan errors are not recorded.
func (t *TraceDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	s := t.begin(ctx, query)
	row := t.db.QueryRowContext(s.ctx, query, args...)
	s.end(row.Err())
	return row
}

// queryTarget returns the statement keyword and the first table it names
func queryTarget(query string) (operation, table string) {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN", ""
	}
	operation = strings.ToUpper(fields[0])
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "INTO", "UPDATE":
			return operation, strings.Trim(fields[i+1], "();,")
		}
	}
	return operation, ""
}
