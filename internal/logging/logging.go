// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

// Package logging builds the CLI slog logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// LevelTrace is more verbose than debug and enables per-block diagnostics.
const LevelTrace = slog.LevelDebug - 4

// ErrInvalidLevel means log level name is not recognized.
var ErrInvalidLevel = errors.New("invalid log level")

// Options configures Setup.
type Options struct {
	// Console receives human-readable output; defaults to os.Stderr.
	Console io.Writer
	// Level is one of trace, debug, info, warn, error, fatal.
	Level string
	// OutputDir enables additional JSON log file in this directory.
	OutputDir string
	// NoColor disables ANSI colors in console output.
	NoColor bool
}

// Setup builds logger from opts and installs it as slog default.
// Returned close function releases the log file, if any.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		NoColor:    opts.NoColor,
		TimeFormat: time.TimeOnly,
	})

	if opts.OutputDir == "" {
		logger := slog.New(consoleHandler)
		slog.SetDefault(logger)
		return logger, func() error { return nil }, nil
	}

	logDir := os.ExpandEnv(opts.OutputDir)
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log output directory: %w", err)
	}

	logFilePath := filepath.Join(logDir, fmt.Sprintf("gamearc_%s.log", time.Now().Format("20060102_150405")))
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // operator-provided log dir
	if err != nil {
		return nil, nil, fmt.Errorf("create log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})
	logger := slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
	slog.SetDefault(logger)

	logger.Debug("logging to file", slog.String("path", logFilePath))
	return logger, logFile.Close, nil
}

// ParseLevel converts level name to slog.Level. Empty name means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "fatal":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, name)
	}
}
