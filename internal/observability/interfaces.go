// Package observability provides the structured logging and metrics
// surface shared by every component of the recommendation engine.
package observability

import "time"

// LogLevel defines log message severity.
type LogLevel string

// Log levels, ordered from most to least verbose.
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger is the structured logging interface used throughout the module.
// Fields are passed as a flat map rather than variadic key/value pairs to
// match the style of the rest of the component wiring (config, metrics).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// WithPrefix returns a derived logger tagged with an additional prefix,
	// e.g. a component name such as "vectorstore" or "hybrid-engine".
	WithPrefix(prefix string) Logger
	// With returns a derived logger that merges fields into every
	// subsequent call, e.g. a tenant or request id.
	With(fields map[string]interface{}) Logger
}

// MetricsClient is the metrics recording interface used throughout the
// module. Implementations may be backed by Prometheus or be no-ops in
// tests.
type MetricsClient interface {
	RecordCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordTimer(name string, duration time.Duration, labels map[string]string)

	RecordCacheOperation(tier string, operation string, hit bool, duration time.Duration)
	RecordVectorOperation(operation string, success bool, duration time.Duration)
	RecordRecommendationRequest(tenantID string, strategy string, cacheHit bool, duration time.Duration)

	// StartTimer returns a stop function that records the elapsed time as
	// a histogram observation when called.
	StartTimer(name string, labels map[string]string) func()

	Close() error
}
