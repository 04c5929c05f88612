// Package logger provides verbose logging for testctx.
// When verbose mode is enabled via the --verbose flag, debug messages
// are written to stderr to help users follow the ingestion and retrieval
// pipeline. Errors are always written.
//
// The package keeps a printf-style API for call sites and exposes the
// underlying zap logger through L for structured events.
package logger

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	level             = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	base              = build(output)
)

// build constructs a console logger writing to w at the shared level.
func build(w io.Writer) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.NameKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.ErrorLevel)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build(w)
}

// L returns the structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug writes a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	L().Sugar().Debugf(format, args...)
}

// Section writes a section header if verbose mode is enabled.
func Section(name string) {
	L().Sugar().Debugf("=== %s ===", name)
}

// Info writes an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	L().Sugar().Infof(format, args...)
}

// Warn writes a warning message if verbose mode is enabled.
func Warn(format string, args ...any) {
	L().Sugar().Warnf(format, args...)
}

// Error writes an error message regardless of verbose mode.
func Error(format string, args ...any) {
	L().Sugar().Errorf(format, args...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}
