package logging

import (
	"io"
	"log/slog"
	"os"
)

// Format selects the slog handler used by New.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures the process logger.
type Options struct {
	// Debug lowers the level to slog.LevelDebug.
	Debug bool

	// Format is json for server deployments and text for local stdio use.
	Format Format

	// Output defaults to os.Stderr. Stdout is reserved for the stdio transport.
	Output io.Writer
}

// New builds a logger from opts. It does not install it as the default;
// callers do that with slog.SetDefault when they own the process.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch opts.Format {
	case FormatText:
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		handler = slog.NewJSONHandler(out, handlerOpts)
	}
	return slog.New(handler)
}
