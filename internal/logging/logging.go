// Package logging builds the structured loggers used by every component.
//
// Output goes to stderr by default. A log file can be added alongside it;
// records are then written to both.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// #region config
// Config selects level, format and destinations.
type Config struct {
	Level string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json" json:"json"`
	// File, if set, receives a JSON copy of every record.
	File string `yaml:"file" json:"file,omitempty"`
	// Writer overrides stderr. Used by tests.
	Writer io.Writer `yaml:"-" json:"-"`
}

// #endregion config

// #region constructor
// New builds a logger. The returned close function releases the log file
// and is never nil.
func New(cfg Config) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var primary slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.JSON {
		primary = slog.NewJSONHandler(w, opts)
	}
	if cfg.File == "" {
		return slog.New(primary), func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	h := &multiHandler{handlers: []slog.Handler{primary, slog.NewJSONHandler(f, opts)}}
	return slog.New(h), f.Close, nil
}

// ParseLevel maps a level name to a slog level. The empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// OrDefault returns l, or slog.Default() for nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// #endregion constructor

// #region multi-handler
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			errs = append(errs, hh.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}

// #endregion multi-handler
