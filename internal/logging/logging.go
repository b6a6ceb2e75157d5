// Package logging builds the zerolog.Logger every subsystem in this
// daemon logs through: one base logger per process, with per-component
// loggers derived from it via .With().Str("component", ...).
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog's level vocabulary so callers configuring logging
// don't need to import zerolog directly.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Format selects the output encoding.
type Format string

const (
	// FormatJSON is zerolog's native wire format, suitable for log
	// collectors.
	FormatJSON Format = "json"
	// FormatConsole is zerolog's human-readable, colorized console writer,
	// suitable for an interactive terminal.
	FormatConsole Format = "console"
)

// Config configures the process-wide base logger.
type Config struct {
	Level          Level
	Format         Format
	ServiceName    string
	ServiceVersion string
	Environment    string
	Output         io.Writer // defaults to os.Stderr
}

// New builds the base logger for cfg, tagged with the service identity
// fields every log line carries regardless of component.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).
		Level(cfg.Level.zerolog()).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.ServiceVersion).
		Str("env", cfg.Environment).
		Logger()
}

// Component returns a child logger tagged with the given component name,
// the convention every package in this daemon uses (see pkg/accounter,
// pkg/partition, pkg/appmanager for callers).
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
