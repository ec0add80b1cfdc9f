package obs

import (
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	base  = zap.NewNop()
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// Fields are attached to a single log line. Keys are emitted in sorted order.
type Fields map[string]any

// Setup installs the process logger. format is "json" or "console"; any
// unknown level falls back to info.
func Setup(lvl, format string) *zap.Logger {
	level.SetLevel(parseLevel(lvl))

	var enc zapcore.Encoder
	if strings.EqualFold(format, "console") {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	}
	l := zap.New(zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), level),
		zap.AddCaller(),
		zap.AddCallerSkip(2),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	SetLogger(l)
	return l
}

// SetLogger replaces the process logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// EnableDebug switches the level between debug and info at runtime.
func EnableDebug(v bool) {
	if v {
		level.SetLevel(zap.DebugLevel)
		return
	}
	level.SetLevel(zap.InfoLevel)
}

// Sync flushes buffered log entries.
func Sync() { _ = logger().Sync() }

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func logWith(lvl zapcore.Level, msg string, f Fields) {
	l := logger()
	ce := l.Check(lvl, msg)
	if ce == nil {
		return
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	zf := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		zf = append(zf, zap.Any(k, f[k]))
	}
	ce.Write(zf...)
}

func Debug(msg string, f Fields) { logWith(zap.DebugLevel, msg, f) }
func Info(msg string, f Fields)  { logWith(zap.InfoLevel, msg, f) }
func Warn(msg string, f Fields)  { logWith(zap.WarnLevel, msg, f) }
func Error(msg string, f Fields) { logWith(zap.ErrorLevel, msg, f) }
