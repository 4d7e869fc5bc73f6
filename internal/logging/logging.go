// Package logging builds the process logger and installs it as the zap
// global, so packages can log through zap.S().Named(...).
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats accepted by Setup.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a logger at level ("debug", "info", "warn", "error") writing
// format ("console" or "json") to stderr.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case FormatJSON:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("log format %q: want %s or %s", format, FormatConsole, FormatJSON)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// Setup builds a logger with New and replaces the zap globals with it. The
// returned function restores the previous globals.
func Setup(level, format string) (*zap.Logger, func(), error) {
	l, err := New(level, format)
	if err != nil {
		return nil, func() {}, err
	}
	undo := zap.ReplaceGlobals(l)
	return l, undo, nil
}
