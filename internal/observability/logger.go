package observability

import (
	"io"
	"log/slog"
	"os"
)

// Options configures the process logger
type Options struct {
	Level  slog.Level
	Format string // text or json
	Output io.Writer
}

// New builds the process logger. JSON goes to stdout by default.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler)
}

// Install builds the logger and makes it the slog default, so the
// standard log package (and libraries using it) write through it too.
func Install(opts Options) *slog.Logger {
	logger := New(opts)
	slog.SetDefault(logger)
	return logger
}
