package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AI-Template-SDK/senso-batchfix/internal/config"
)

// New constructs a slog.Logger configured according to the provided
// settings. Log output goes to stderr so stdout stays clean for the
// reconciliation report.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter is New with an explicit destination, for tests.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	handler, err := buildHandler(w, cfg)
	if err != nil {
		return nil, err
	}

	return slog.New(handler), nil
}

func buildHandler(w io.Writer, cfg config.LoggingConfig) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}
