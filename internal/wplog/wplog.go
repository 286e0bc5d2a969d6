// Package wplog constructs the one process-wide logger cell used across
// wolfpack's components. It is built once in cmd/wolfpack/main.go and
// passed explicitly into constructors — never referenced as a package-level
// global — so tests can substitute their own observer without racing a
// shared zap.L().
package wplog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a SugaredLogger writing human-readable console output at info
// level, or debug level when verbose is true.
func New(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for use in tests that
// don't want log output cluttering `go test -v`.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
