package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

func init() {
	Logger = zap.NewNop()
}

// EnsureLogger replaces the no-op logger with a development logger at the
// given level. Unknown levels fall back to debug.
func EnsureLogger(level string) {
	cfg := zap.NewDevelopmentConfig()

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		Logger, _ = zap.NewDevelopment()
		return
	}
	Logger = l
}

func Sync() {
	_ = Logger.Sync()
}
