package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LogLevelVerbose = "VERBOSE"
	LogLevelErrors  = "ERRORS"
	LogLevelNone    = "NONE"
)

// NewLogger builds the process logger. VERBOSE logs debug and up, ERRORS
// (the default) logs errors only, NONE discards everything.
func NewLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LogLevelVerbose:
		zapLevel = zapcore.DebugLevel
	case LogLevelNone:
		return zap.NewNop(), nil
	case "", LogLevelErrors:
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
