// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - Successful HTTP attempts (target, status, latency, bytes)
//   - Cache hits and misses for metadata pages
//   - Limiter waits longer than a second
//
// Info: run progress
//   - Each metadata page fetched, with running total
//   - Price batch progress every 10 batches
//   - Stage completion with counts, files written
//
// Warn: degraded but continuing
//   - Retryable HTTP failures (429, 5xx, network)
//   - Price batches resolved as api_error
//   - Data anomalies: mismatched outcome/token arrays, non-numeric prices
//   - Cache or shared cooldown errors (run continues without them)
//
// Error: run failure
//   - Retry exhaustion
//   - Metadata fetch failure (fatal)
//   - Sink write failures
//
// Context Fields:
//   - component: emitting package (http-client, gamma, clob, snapshot, ...)
//   - target: request target label (gamma:/markets, clob:/prices)
//   - attempt: 1-based attempt number
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network
//   - latency: attempt duration
//   - bytes: response payload size
//   - page / batch: sequence numbers
