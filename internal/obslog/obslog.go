// Package obslog builds the process-wide structured logger: zap under the
// hood, exposed through the logr.Logger interface so every internal
// package logs against an interface rather than zap directly — the same
// zapr pairing used for diagnostic logging across the retrieval pack.
package obslog

import (
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zapcore"
)

// New builds a logr.Logger from AIDD_LOG_LEVEL ("debug", "info", "warn",
// "error"; default "info") and AIDD_LOG_FORMAT ("console" or "json";
// default "console" for a terminal-attached CLI).
func New() logr.Logger {
	level := parseLevel(os.Getenv("AIDD_LOG_LEVEL"))

	var cfg zap.Config
	if strings.EqualFold(os.Getenv("AIDD_LOG_FORMAT"), "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true

	zl, err := cfg.Build()
	if err != nil {
		// Logging must never block the CLI from running; fall back to a
		// no-op logger rather than fail the command.
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

func parseLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
