// Package logger provides the leveled logging helpers used across the image linker.
// Messages are written through a zap SugaredLogger so that the output can be switched
// between a human readable console encoding and JSON without touching call sites.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is used for general informational messages.
	LevelInfo
	// LevelWarn is used for potential issues.
	LevelWarn
	// LevelError is used for errors that do not stop the process.
	LevelError
	// LevelFatal is used right before the process terminates.
	LevelFatal
)

var (
	mu       sync.RWMutex
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format   = "console"
	sugared  = build(format)
	stateLvl = LevelInfo
)

// build constructs the zap logger for the given encoding ("console" or "json").
func build(encoding string) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if encoding == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core).Sugar()
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// Unknown values fall back to INFO.
func SetLogLevel(lvl string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToUpper(lvl) {
	case "DEBUG":
		stateLvl = LevelDebug
		level.SetLevel(zapcore.DebugLevel)
	case "INFO":
		stateLvl = LevelInfo
		level.SetLevel(zapcore.InfoLevel)
	case "WARN":
		stateLvl = LevelWarn
		level.SetLevel(zapcore.WarnLevel)
	case "ERROR":
		stateLvl = LevelError
		level.SetLevel(zapcore.ErrorLevel)
	case "FATAL":
		stateLvl = LevelFatal
		level.SetLevel(zapcore.FatalLevel)
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", lvl)
		stateLvl = LevelInfo
		level.SetLevel(zapcore.InfoLevel)
	}
}

// SetFormat switches the output encoding. Anything other than "json" selects the console encoder.
func SetFormat(encoding string) {
	mu.Lock()
	defer mu.Unlock()
	enc := strings.ToLower(encoding)
	if enc != "json" {
		enc = "console"
	}
	if enc == format {
		return
	}
	_ = sugared.Sync()
	format = enc
	sugared = build(enc)
}

// CurrentLevel returns the level set by the last SetLogLevel call.
func CurrentLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return stateLvl
}

// Enabled reports whether messages at lvl are currently written.
func Enabled(lvl LogLevel) bool {
	return CurrentLevel() <= lvl
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugared
}

// Debugf formats and outputs a DEBUG level message.
func Debugf(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

// Infof formats and outputs an INFO level message.
func Infof(format string, v ...interface{}) {
	current().Infof(format, v...)
}

// Warnf formats and outputs a WARN level message.
func Warnf(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

// Errorf formats and outputs an ERROR level message.
func Errorf(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

// Fatalf outputs a FATAL level message and terminates the program with os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	current().Fatalf(format, v...)
}

// Sync flushes any buffered log entries.
func Sync() error {
	return current().Sync()
}

// Scoped is a logger carrying a fixed set of key/value fields, e.g. a session id.
type Scoped struct {
	s *zap.SugaredLogger
}

// With returns a Scoped logger that attaches keysAndValues to every message.
func With(keysAndValues ...interface{}) *Scoped {
	return &Scoped{s: current().With(keysAndValues...)}
}

func (l *Scoped) Debugf(format string, v ...interface{}) { l.s.Debugf(format, v...) }
func (l *Scoped) Infof(format string, v ...interface{})  { l.s.Infof(format, v...) }
func (l *Scoped) Warnf(format string, v ...interface{})  { l.s.Warnf(format, v...) }
func (l *Scoped) Errorf(format string, v ...interface{}) { l.s.Errorf(format, v...) }
