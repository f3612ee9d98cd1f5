package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

// Fields carries structured context attached to a log line.
type Fields map[string]interface{}

var (
	currentLevel LogLevel
	jsonFormat   bool
	levelOnce    sync.Once

	outMu  sync.Mutex
	logger = log.New(os.Stderr, "", log.LstdFlags)
)

// initLevel resolves level and format from the environment exactly once.
func initLevel() {
	levelOnce.Do(func() {
		currentLevel = parseLevel(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
		jsonFormat = strings.EqualFold(os.Getenv("LOG_FORMAT"), "json")
	})
}

func parseLevel(debug, level string) LogLevel {
	switch strings.ToLower(debug) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(level) {
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

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	logger.SetOutput(w)
}

// SetLevel overrides the level resolved from the environment.
func SetLevel(l LogLevel) {
	initLevel()
	outMu.Lock()
	defer outMu.Unlock()
	currentLevel = l
}

// SetJSON toggles JSON line output.
func SetJSON(enabled bool) {
	initLevel()
	outMu.Lock()
	defer outMu.Unlock()
	jsonFormat = enabled
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	outMu.Lock()
	defer outMu.Unlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func emit(level LogLevel, fields Fields, format string, args ...interface{}) {
	if GetLevel() > level {
		return
	}
	write(level.label(), fields, fmt.Sprintf(format, args...))
}

func write(label string, fields Fields, msg string) {
	outMu.Lock()
	defer outMu.Unlock()

	if jsonFormat {
		line := struct {
			Timestamp string `json:"timestamp"`
			Level     string `json:"level"`
			Message   string `json:"message"`
			Context   Fields `json:"context,omitempty"`
		}{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Level:     strings.ToLower(label),
			Message:   msg,
			Context:   fields,
		}
		b, err := json.Marshal(line)
		if err != nil {
			b = []byte(fmt.Sprintf(`{"level":"error","message":%q}`, "log marshal failed: "+err.Error()))
		}
		w := logger.Writer()
		_, _ = w.Write(append(b, '\n'))
		return
	}

	if len(fields) > 0 {
		msg += " " + formatFields(fields)
	}
	logger.Print("[" + label + "] " + msg)
}

func formatFields(fields Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) { emit(LevelDebug, nil, format, args...) }

// Info logs an info message
func Info(format string, args ...interface{}) { emit(LevelInfo, nil, format, args...) }

// Warn logs a warning message
func Warn(format string, args ...interface{}) { emit(LevelWarn, nil, format, args...) }

// Error logs an error message
func Error(format string, args ...interface{}) { emit(LevelError, nil, format, args...) }

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	write("FATAL", nil, fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Printf is a pass-through for messages that should always print
func Printf(format string, args ...interface{}) {
	outMu.Lock()
	defer outMu.Unlock()
	logger.Printf(format, args...)
}

// Println is a pass-through for messages that should always print
func Println(args ...interface{}) {
	outMu.Lock()
	defer outMu.Unlock()
	logger.Println(args...)
}

// Entry is a logger bound to a set of context fields.
type Entry struct {
	fields Fields
}

// WithFields returns an Entry that attaches fields to every line it logs.
func WithFields(fields Fields) Entry {
	return Entry{fields: fields}
}

// Debug logs at debug level with the entry's fields.
func (e Entry) Debug(format string, args ...interface{}) { emit(LevelDebug, e.fields, format, args...) }

// Info logs at info level with the entry's fields.
func (e Entry) Info(format string, args ...interface{}) { emit(LevelInfo, e.fields, format, args...) }

// Warn logs at warn level with the entry's fields.
func (e Entry) Warn(format string, args ...interface{}) { emit(LevelWarn, e.fields, format, args...) }

// Error logs at error level with the entry's fields.
func (e Entry) Error(format string, args ...interface{}) { emit(LevelError, e.fields, format, args...) }

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

func (l LogLevel) label() string {
	return strings.ToUpper(l.String())
}
