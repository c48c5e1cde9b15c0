package main

import (
	"fmt"
	"os"

	"github.com/christopherdebeer/dygram/pkg/logger"
)

const (
	logLevelEnvVar  = "LOG_LEVEL"
	logFileEnvVar   = "LOG_FILE"
	logFormatEnvVar = "LOG_FORMAT"
)

// initLoggerFromCLI initializes the package logger from CLI flags, falling
// back to environment variables and then defaults. Priority: CLI flag > env
// var > default. Returns a cleanup function to defer (nil if logging to
// stderr, which needs no closing).
func initLoggerFromCLI(cliLevel, cliFile, cliFormat string) (func(), error) {
	level := cliLevel
	if level == "" {
		level = os.Getenv(logLevelEnvVar)
	}
	if level == "" {
		level = "info"
	}

	file := cliFile
	if file == "" {
		file = os.Getenv(logFileEnvVar)
	}

	format := cliFormat
	if format == "" {
		format = os.Getenv(logFormatEnvVar)
	}
	if format == "" {
		format = "simple"
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	if file == "" {
		logger.Init(parsed, os.Stderr, format)
		return nil, nil
	}

	out, cleanup, err := logger.OpenLogFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.Init(parsed, out, format)
	return cleanup, nil
}
