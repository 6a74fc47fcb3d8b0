// Package logging builds the slog loggers coopsched hands to the scheduler
// and its host loop.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"coopsched/internal/config"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a config value to a Format. Anything but "json" is text.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// ParseLevel converts a level name to slog.Level. It accepts the names slog
// itself understands, with offsets such as "debug-4" for tracing individual
// tasks, plus "warning". Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// New returns a logger writing to w. Every record carries service=coopsched
// so scheduler output can be picked out of a shared stream.
func New(w io.Writer, level slog.Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "coopsched")
}

// FromConfig builds the logger described by the log_level and log_format
// settings.
func FromConfig(cfg config.Config, w io.Writer) *slog.Logger {
	return New(w, ParseLevel(cfg.LogLevel), ParseFormat(cfg.LogFormat))
}

// Component tags logger with the name of the part of the program using it.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}
