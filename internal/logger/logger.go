package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is for detailed debugging information
	LevelDebug LogLevel = iota
	// LevelInfo is for general informational messages
	LevelInfo
	// LevelWarn is for warning messages
	LevelWarn
	// LevelError is for error messages
	LevelError
)

// EnvDebug is the environment variable controlling debug verbosity.
// Unset or "0" logs warnings and errors only, "1" enables debug output
// for the lock protocol, "2" additionally traces guard acquisition.
// Verbosity never affects protocol behavior.
const EnvDebug = "RWLOCK_DEBUG"

// String returns the string representation of a log level
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

// Logger provides leveled logging for lock diagnostics
type Logger struct {
	mu      sync.Mutex
	level   LogLevel
	verbose bool
	writer  io.Writer
}

// New creates a new logger
func New(level LogLevel, writer io.Writer) *Logger {
	if writer == nil {
		writer = os.Stderr
	}

	return &Logger{
		level:  level,
		writer: writer,
	}
}

// Default returns a logger with default settings (WARN level, stderr)
func Default() *Logger {
	return New(LevelWarn, os.Stderr)
}

// Silent returns a logger that doesn't output anything
func Silent() *Logger {
	return New(LevelError, io.Discard)
}

// FromEnv returns a logger configured from the RWLOCK_DEBUG environment
// variable
func FromEnv() *Logger {
	l := Default()
	switch os.Getenv(EnvDebug) {
	case "1":
		l.level = LevelDebug
	case "2":
		l.level = LevelDebug
		l.verbose = true
	}
	return l
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetVerbose enables or disables verbose guard tracing
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// SetWriter sets the output writer
func (l *Logger) SetWriter(writer io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = writer
}

// Verbose reports whether verbose guard tracing is enabled
func (l *Logger) Verbose() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verbose
}

// log writes a log message if the level is high enough
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("[%s] %s: %s\n", timestamp, level.String(), message)

	_, _ = l.writer.Write([]byte(logLine))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Trace logs a debug message only when verbose guard tracing is enabled
func (l *Logger) Trace(format string, args ...interface{}) {
	if !l.Verbose() {
		return
	}
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Global logger instance
var (
	globalMu     sync.Mutex
	globalLogger = FromEnv()
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(format string, args ...interface{}) {
	GetGlobalLogger().Debug(format, args...)
}

// Trace logs a verbose-only debug message using the global logger
func Trace(format string, args ...interface{}) {
	GetGlobalLogger().Trace(format, args...)
}

// Info logs an info message using the global logger
func Info(format string, args ...interface{}) {
	GetGlobalLogger().Info(format, args...)
}

// Warn logs a warning message using the global logger
func Warn(format string, args ...interface{}) {
	GetGlobalLogger().Warn(format, args...)
}

// Error logs an error message using the global logger
func Error(format string, args ...interface{}) {
	GetGlobalLogger().Error(format, args...)
}
