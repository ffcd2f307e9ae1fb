package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// noopFunc is a reusable no-op function to avoid allocations
var noopFunc = func() {}

// Trace returns a function that logs operation duration when called.
// Returns a no-op function when TRACE level is disabled.
// Usage: defer logger.Trace("operation")()
func Trace(name string) func() {
	l := current()
	if !l.shouldLog(LogLevelTrace) {
		return noopFunc
	}
	start := time.Now()
	return func() {
		l.logWithLevel(LogLevelTrace, "%s: %v", name, time.Since(start))
	}
}

// Rotation limits for the log file
const (
	MaxLogSizeMB  = 5
	MaxLogBackups = 2
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LogLevelTrace
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// zapLevel maps a LogLevel onto zap. zap has no trace level, so trace
// messages are written at debug with a TRACE marker.
func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Logger is a leveled logger backed by zap
type Logger struct {
	sugar  *zap.SugaredLogger
	level  LogLevel
	closer func() error
	mutex  sync.RWMutex
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// defaultLogger is used before Setup is called
var defaultLogger = New(zapcore.AddSync(os.Stderr), LogLevelInfo)

// New creates a logger writing console-encoded lines to w
func New(w zapcore.WriteSyncer, level LogLevel) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""

	// The core accepts everything; filtering happens in shouldLog so that
	// SetLevel can change it at runtime, including the trace level.
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), w, zapcore.DebugLevel)
	return &Logger{
		sugar:  zap.New(core).Sugar(),
		level:  level,
		closer: func() error { return nil },
	}
}

// Setup creates a logger writing to a size-rotated file and installs it
// as the global logger. Caller must defer Close().
func Setup(path string, level LogLevel) *Logger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    MaxLogSizeMB,
		MaxBackups: MaxLogBackups,
	}
	l := New(zapcore.AddSync(rotator), level)
	l.closer = rotator.Close
	SetGlobal(l)
	return l
}

// SetGlobal installs l as the package-level logger
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

func current() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return defaultLogger
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.level = level
}

func (l *Logger) shouldLog(level LogLevel) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return level >= l.level
}

func (l *Logger) logWithLevel(level LogLevel, format string, v ...any) {
	if !l.shouldLog(level) {
		return
	}
	switch level {
	case LogLevelTrace:
		l.sugar.Debugf("[TRACE] "+format, v...)
	case LogLevelDebug:
		l.sugar.Debugf(format, v...)
	case LogLevelInfo:
		l.sugar.Infof(format, v...)
	case LogLevelWarn:
		l.sugar.Warnf(format, v...)
	default:
		l.sugar.Errorf(format, v...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...any) {
	l.logWithLevel(LogLevelDebug, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...any) {
	l.logWithLevel(LogLevelInfo, format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...any) {
	l.logWithLevel(LogLevelWarn, format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...any) {
	l.logWithLevel(LogLevelError, format, v...)
}

// Fatal logs an error message and exits with code 1
func (l *Logger) Fatal(format string, v ...any) {
	l.logWithLevel(LogLevelError, format, v...)
	_ = l.sugar.Sync()
	os.Exit(1)
}

// Write implements io.Writer so the standard library logger can be
// redirected here. Each write is logged as one info line.
func (l *Logger) Write(p []byte) (int, error) {
	l.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Close flushes and closes the underlying file
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	return l.closer()
}

// Package-level logging functions that use the global logger (or default if not initialized)

func Debug(format string, v ...any) { current().Debug(format, v...) }

func Info(format string, v ...any) { current().Info(format, v...) }

func Warn(format string, v ...any) { current().Warn(format, v...) }

func Error(format string, v ...any) { current().Error(format, v...) }

func Fatal(format string, v ...any) { current().Fatal(format, v...) }
