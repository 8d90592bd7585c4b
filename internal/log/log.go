package log

import (
	"fmt"
	"io"
	"log/slog"
)

// Options selects the handler built by New
type Options struct {
	Format string
	Level  string
	Source bool
}

// New builds a logger writing to w. Format is either json or text.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	handlerOptions := slog.HandlerOptions{
		AddSource: opts.Source,
		Level:     level,
	}

	switch opts.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &handlerOptions)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, &handlerOptions)), nil
	default:
		return nil, fmt.Errorf("unknown log format '%s'", opts.Format)
	}
}
