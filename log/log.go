package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

type Config struct {
	Level  string
	Format string
	Source bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "text",
		Source: false,
	}
}

// New configures a structured logger based on the given configuration. If any
// of the configuration parameters do not match expected values, it returns an
// error. Records logged with a context carrying a request id get a
// "request_id" attribute.
func New(cfg *Config) (*slog.Logger, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("unknown log level %s: %w", cfg.Level, err)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		AddSource: cfg.Source,
		Level:     logLevel,
	}

	var h slog.Handler
	switch cfg.Format {
	case "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	return slog.New(&handler{Handler: h}), nil
}
