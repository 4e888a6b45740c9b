// Package logging provides leveled key/value logging for gauge. Child loggers
// created with With or WithFields share their parent's level and output, so a
// level change made after startup (for example from a --log-level flag) applies
// to every component logger.
package logging

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level represents a log level.
type Level int

const (
	// LevelDebug is for per-sample and per-request detail.
	LevelDebug Level = iota
	// LevelInfo is for session lifecycle messages.
	LevelInfo
	// LevelWarn is for recovered failures such as a ping fallback.
	LevelWarn
	// LevelError is for failures that end a session or a command.
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// String returns the upper-case level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a level name (debug, info, warn|warning, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// sink is the state shared between a logger and its children.
type sink struct {
	mu       sync.RWMutex
	minLevel Level
	output   *log.Logger
}

// Logger writes leveled messages with context fields.
type Logger struct {
	sink   *sink
	fields map[string]interface{}
}

var defaultLogger = New()

// New creates a Logger writing to stderr at LevelWarn.
func New() *Logger {
	return &Logger{
		sink: &sink{
			minLevel: LevelWarn,
			output:   log.New(os.Stderr, "", log.LstdFlags),
		},
		fields: map[string]interface{}{},
	}
}

// Default returns the package-level logger.
func Default() *Logger {
	return defaultLogger
}

// SetLevel sets the minimum level for this logger and all loggers derived from it.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.minLevel
}

// SetOutput replaces the destination for this logger and all loggers derived from it.
func (l *Logger) SetOutput(output *log.Logger) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = output
}

// With returns a child Logger carrying an additional field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a child Logger carrying additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{sink: l.sink, fields: merged}
}

// Named returns a child Logger tagged with component=name.
func (l *Logger) Named(name string) *Logger {
	return l.With("component", name)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

func (l *Logger) log(level Level, msg string, keyVals ...interface{}) {
	l.sink.mu.RLock()
	minLevel := l.sink.minLevel
	output := l.sink.output
	l.sink.mu.RUnlock()

	if level < minLevel {
		return
	}

	all := make(map[string]interface{}, len(l.fields)+len(keyVals)/2)
	for k, v := range l.fields {
		all[k] = v
	}
	for i := 0; i+1 < len(keyVals); i += 2 {
		if key, ok := keyVals[i].(string); ok {
			all[key] = keyVals[i+1]
		}
	}

	var sb strings.Builder
	sb.WriteString(level.String())
	sb.WriteString(": ")
	sb.WriteString(msg)

	if len(all) > 0 {
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(formatValue(all[k]))
		}
	}

	output.Print(sb.String())
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if val == "" || strings.ContainsAny(val, " \t\n\"=") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case error:
		return fmt.Sprintf("%q", val.Error())
	case float64:
		return fmt.Sprintf("%.2f", val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keyVals ...interface{}) {
	l.log(LevelDebug, msg, keyVals...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keyVals ...interface{}) {
	l.log(LevelInfo, msg, keyVals...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keyVals ...interface{}) {
	l.log(LevelWarn, msg, keyVals...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keyVals ...interface{}) {
	l.log(LevelError, msg, keyVals...)
}

// Package-level helpers on the default logger.

// SetLevel sets the default logger's level.
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// SetOutput sets the default logger's output.
func SetOutput(output *log.Logger) {
	defaultLogger.SetOutput(output)
}

// With returns a child of the default logger.
func With(key string, value interface{}) *Logger {
	return defaultLogger.With(key, value)
}

// WithFields returns a child of the default logger.
func WithFields(fields map[string]interface{}) *Logger {
	return defaultLogger.WithFields(fields)
}

// Named returns a component logger derived from the default logger.
func Named(name string) *Logger {
	return defaultLogger.Named(name)
}

// Debug logs at debug level using the default logger.
func Debug(msg string, keyVals ...interface{}) {
	defaultLogger.Debug(msg, keyVals...)
}

// Info logs at info level using the default logger.
func Info(msg string, keyVals ...interface{}) {
	defaultLogger.Info(msg, keyVals...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, keyVals ...interface{}) {
	defaultLogger.Warn(msg, keyVals...)
}

// Error logs at error level using the default logger.
func Error(msg string, keyVals ...interface{}) {
	defaultLogger.Error(msg, keyVals...)
}
