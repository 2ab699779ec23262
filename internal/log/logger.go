// SPDX-License-Identifier: MIT
//
// Package log is the process-wide leveled logger. The printf-style API is
// backed by a zap sugared logger writing console-encoded lines to stderr.
package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
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
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// --- Global Logger State ---

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  atomic.Pointer[zap.SugaredLogger]
	levelV atomic.Uint32
)

func init() {
	sugar.Store(zap.New(consoleCore(zapcore.Lock(os.Stderr))).Sugar())
	SetLevel(LevelInfo)
}

func consoleCore(ws zapcore.WriteSyncer) zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)
}

// SetLevel sets the global logging level atomically.
func SetLevel(l LogLevel) {
	levelV.Store(uint32(l))
	level.SetLevel(l.zapLevel())
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(levelV.Load())
}

// ReplaceCore swaps the destination of all log output and returns a function
// restoring the previous logger. The new core is still gated by SetLevel.
// Tests use it with zaptest/observer.
func ReplaceCore(core zapcore.Core) (restore func()) {
	prev := sugar.Load()
	gated, err := zapcore.NewIncreaseLevelCore(core, level)
	if err != nil {
		gated = core
	}
	sugar.Store(zap.New(gated).Sugar())
	return func() { sugar.Store(prev) }
}

// RedirectTo sends console-encoded output to w instead of stderr, e.g. while
// a full-screen terminal UI owns the terminal.
func RedirectTo(w io.Writer) (restore func()) {
	prev := sugar.Load()
	sugar.Store(zap.New(consoleCore(zapcore.Lock(zapcore.AddSync(w)))).Sugar())
	return func() { sugar.Store(prev) }
}

// Logger returns the structured logger behind the package functions.
func Logger() *zap.Logger {
	return sugar.Load().Desugar()
}

// Sync flushes buffered output. Call it before the process exits.
func Sync() {
	_ = sugar.Load().Sync()
}

// --- Public Logging Functions ---

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) {
	sugar.Load().Debugf(format, v...)
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) {
	sugar.Load().Infof(format, v...)
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) {
	sugar.Load().Warnf(format, v...)
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) {
	sugar.Load().Errorf(format, v...)
}

// Fatalf logs a formatted fatal message and exits the application.
func Fatalf(format string, v ...any) {
	sugar.Load().Fatalf(format, v...)
}

// Info logs an info message if the level is appropriate.
func Info(v ...any) {
	sugar.Load().Info(v...)
}

// Warn logs a warning message if the level is appropriate.
func Warn(v ...any) {
	sugar.Load().Warn(v...)
}

// Error logs an error message if the level is appropriate.
func Error(v ...any) {
	sugar.Load().Error(v...)
}
