// Package logger builds the zerolog logger shared by the harvester components
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// EnvLevel is the environment variable holding the log level
	EnvLevel = "LOG_LEVEL"
	// EnvFormat is the environment variable holding the log format (console or json)
	EnvFormat = "LOG_FORMAT"
)

// Options configures the logger
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// FromEnv reads Options from LOG_LEVEL and LOG_FORMAT
func FromEnv() Options {
	return Options{
		Level:  strings.ToLower(strings.TrimSpace(os.Getenv(EnvLevel))),
		Format: strings.ToLower(strings.TrimSpace(os.Getenv(EnvFormat))),
	}
}

// New builds a logger. Output goes to stderr unless a writer is given;
// the console format is the default.
func New(opt Options) zerolog.Logger {
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: opt.Writer != nil}
	}

	return zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp().Logger()
}

// parseLevel defaults to info
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
