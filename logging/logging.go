package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Options selects the level and format of the process logger.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // json or text
	Verbose bool   // forces debug
}

// New builds a redacting logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(w, ho)
	} else {
		handler = slog.NewJSONHandler(w, ho)
	}
	return slog.New(NewSecureHandler(handler))
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
