package observability

import (
	"fmt"
	"log"
	"os"
	"time"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

// StandardLogger writes structured, single-line log entries to stderr.
type StandardLogger struct {
	prefix string
	level  LogLevel
	fields map[string]interface{}
	logger *log.Logger
}

// NewStandardLogger creates a logger with the given component prefix at
// INFO level, writing to stderr so stdout stays free for any piped output.
func NewStandardLogger(prefix string) Logger {
	if prefix == "" {
		prefix = "default"
	}
	return &StandardLogger{
		prefix: prefix,
		level:  LogLevelInfo,
		logger: log.New(os.Stderr, "", 0),
	}
}

// WithLevel returns a derived logger with a different minimum level.
func (l *StandardLogger) WithLevel(level LogLevel) *StandardLogger {
	return &StandardLogger{prefix: l.prefix, level: level, fields: l.fields, logger: l.logger}
}

func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) {
	l.emit(LogLevelDebug, msg, fields)
}

func (l *StandardLogger) Info(msg string, fields map[string]interface{}) {
	l.emit(LogLevelInfo, msg, fields)
}

func (l *StandardLogger) Warn(msg string, fields map[string]interface{}) {
	l.emit(LogLevelWarn, msg, fields)
}

func (l *StandardLogger) Error(msg string, fields map[string]interface{}) {
	l.emit(LogLevelError, msg, fields)
}

func (l *StandardLogger) Fatal(msg string, fields map[string]interface{}) {
	l.emit(LogLevelFatal, msg, fields)
	os.Exit(1)
}

func (l *StandardLogger) Debugf(format string, args ...interface{}) {
	l.emit(LogLevelDebug, fmt.Sprintf(format, args...), nil)
}

func (l *StandardLogger) Infof(format string, args ...interface{}) {
	l.emit(LogLevelInfo, fmt.Sprintf(format, args...), nil)
}

func (l *StandardLogger) Warnf(format string, args ...interface{}) {
	l.emit(LogLevelWarn, fmt.Sprintf(format, args...), nil)
}

func (l *StandardLogger) Errorf(format string, args ...interface{}) {
	l.emit(LogLevelError, fmt.Sprintf(format, args...), nil)
}

func (l *StandardLogger) Fatalf(format string, args ...interface{}) {
	l.emit(LogLevelFatal, fmt.Sprintf(format, args...), nil)
	os.Exit(1)
}

func (l *StandardLogger) WithPrefix(prefix string) Logger {
	return &StandardLogger{prefix: l.prefix + "." + prefix, level: l.level, fields: l.fields, logger: l.logger}
}

func (l *StandardLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StandardLogger{prefix: l.prefix, level: l.level, fields: merged, logger: l.logger}
}

func (l *StandardLogger) levelEnabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.level]
}

func (l *StandardLogger) emit(level LogLevel, msg string, fields map[string]interface{}) {
	if !l.levelEnabled(level) {
		return
	}
	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	line := fmt.Sprintf("%s [%s] [%s] %s%s", timestamp, level, l.prefix, msg, formatFields(mergeFields(l.fields, fields)))
	l.logger.Println(line)
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	if len(base) == 0 {
		return extra
	}
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	out := ""
	for k, v := range fields {
		out += fmt.Sprintf(" %s=%v", k, v)
	}
	return out
}

// NoopLogger discards every entry. Useful as a default in tests that do
// not assert on log output.
type NoopLogger struct{}

func NewNoopLogger() Logger { return &NoopLogger{} }

func (l *NoopLogger) Debug(string, map[string]interface{}) {}
func (l *NoopLogger) Info(string, map[string]interface{})  {}
func (l *NoopLogger) Warn(string, map[string]interface{})  {}
func (l *NoopLogger) Error(string, map[string]interface{}) {}
func (l *NoopLogger) Fatal(string, map[string]interface{}) {}
func (l *NoopLogger) Debugf(string, ...interface{})        {}
func (l *NoopLogger) Infof(string, ...interface{})         {}
func (l *NoopLogger) Warnf(string, ...interface{})         {}
func (l *NoopLogger) Errorf(string, ...interface{})        {}
func (l *NoopLogger) Fatalf(string, ...interface{})        {}
func (l *NoopLogger) WithPrefix(string) Logger             { return l }
func (l *NoopLogger) With(map[string]interface{}) Logger   { return l }

// NewLogger is the primary logger factory used by cmd/recommendation-engine.
func NewLogger(prefix string) Logger {
	return NewStandardLogger(prefix)
}
