// Package logx builds the process-wide logger. All components log through
// the one *zap.Logger handed to them at construction, so output from
// concurrent benchmark workers arrives at a single ordered sink.
package logx

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing to stderr. With debug enabled the logger
// uses the development config at Debug level, and callers are expected to
// stream subprocess output through it instead of discarding it.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
