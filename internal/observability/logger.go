package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents log severity
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps LOG_LEVEL values to a level, defaulting to info
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// sink is the output shared by a logger and everything derived from it
type sink struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

// Logger is a structured logger with trace context support. Loggers derived
// with WithField share their parent's output.
type Logger struct {
	sink        *sink
	minLevel    LogLevel
	fields      map[string]interface{}
	serviceName string
}

var (
	defaultLogger *Logger
	loggerOnce    sync.Once
)

// NewLogger creates a logger writing text lines to stdout
func NewLogger(serviceName string, minLevel LogLevel) *Logger {
	return &Logger{
		sink:        &sink{w: os.Stdout},
		minLevel:    minLevel,
		fields:      map[string]interface{}{},
		serviceName: serviceName,
	}
}

// GetLogger returns the process-wide logger, configured from SERVICE_NAME,
// LOG_LEVEL and LOG_FORMAT (text or json)
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		name := os.Getenv("SERVICE_NAME")
		if name == "" {
			name = "supplysync-server"
		}
		defaultLogger = NewLogger(name, ParseLogLevel(os.Getenv("LOG_LEVEL")))
		defaultLogger.sink.json = strings.EqualFold(os.Getenv("LOG_FORMAT"), "json")
	})
	return defaultLogger
}

// SetOutput redirects this logger and every logger derived from it
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.w = w
}

// SetJSON switches between text lines and one JSON object per line
func (l *Logger) SetJSON(enabled bool) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.json = enabled
}

// WithField returns a new logger with the field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with the fields added
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		sink:        l.sink,
		minLevel:    l.minLevel,
		fields:      merged,
		serviceName: l.serviceName,
	}
}

// WithContext returns a logger carrying the trace and span ids of ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return l
	}
	return l.WithFields(map[string]interface{}{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	})
}

func (l *Logger) Debug(msg string) { l.log(LevelDebug, msg) }
func (l *Logger) Info(msg string)  { l.log(LevelInfo, msg) }
func (l *Logger) Warn(msg string)  { l.log(LevelWarn, msg) }
func (l *Logger) Error(msg string) { l.log(LevelError, msg) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

func (l *Logger) log(level LogLevel, msg string) {
	if level < l.minLevel {
		return
	}

	now := time.Now()
	_, file, line, _ := runtime.Caller(2)
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}
	caller := fmt.Sprintf("%s:%d", file, line)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.json {
		entry := make(map[string]interface{}, len(l.fields)+5)
		for k, v := range l.fields {
			entry[k] = v
		}
		entry["time"] = now.UTC().Format(time.RFC3339Nano)
		entry["level"] = level.String()
		entry["service"] = l.serviceName
		entry["caller"] = caller
		entry["msg"] = msg
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(l.sink.w, string(data))
			return
		}
	}

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s %s", now.Format("2006/01/02 15:04:05"), level, caller, msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	fmt.Fprintln(l.sink.w, b.String())
}

// WithContext returns the default logger with trace context
func WithContext(ctx context.Context) *Logger {
	return GetLogger().WithContext(ctx)
}

// SiteID is the span attribute for a sync site
func SiteID(id int32) attribute.KeyValue {
	return attribute.Int("sync.site_id", int(id))
}

// Cursor is the span attribute for a changelog cursor
func Cursor(cursor int64) attribute.KeyValue {
	return attribute.Int64("sync.cursor", cursor)
}
