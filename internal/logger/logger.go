package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	levelNames = map[int]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	}

	mu       sync.RWMutex
	minLevel = LevelInfo
	out      = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
)

// Logger prefixes every line with its level and component
type Logger struct {
	component string
}

func init() {
	if lvl, ok := ParseLevel(os.Getenv("LOG_LEVEL")); ok {
		minLevel = lvl
	} else if os.Getenv("ENV") == "development" {
		minLevel = LevelDebug
	}
}

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{component: component}
}

// ParseLevel maps a level name such as "debug" or "WARN" to its constant
func ParseLevel(name string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// SetMinLevel allows changing the minimum log level at runtime
func SetMinLevel(level int) {
	mu.Lock()
	minLevel = level
	mu.Unlock()
}

// SetOutput redirects all component loggers, e.g. to a file while a terminal UI owns the screen
func SetOutput(w io.Writer) {
	mu.Lock()
	out.SetOutput(w)
	mu.Unlock()
}

func (l *Logger) logf(level int, format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel {
		return
	}

	prefix := fmt.Sprintf("[%s][%s] ", levelNames[level], l.component)
	out.Printf(prefix+format, args...)
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

// Info logs information messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// Preview shortens secrets such as tokens before they reach a log line
func Preview(secret string) string {
	if len(secret) > 10 {
		return secret[:10] + "..."
	}
	return secret
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development"
	}
	return env
}

// IsDevelopment returns true if the current environment is development
func IsDevelopment() bool {
	return GetAppEnv() == "development"
}
