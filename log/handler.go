// Package log provides a slog handler for guest plugins that routes records
// to the host's log through the env.print import.
package log

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/quillmc/quill-abi/guest"
)

// PrintHandler implements slog.Handler on top of guest.Print. Each record
// becomes one logfmt line.
type PrintHandler struct {
	opts   handlerConfig
	attrs  []field
	groups []string
}

// HandlerOption configures the PrintHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	print     func(string)
	level     slog.Level
	addSource bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		print: guest.Print,
		level: slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
// Records below this level will be filtered on the guest side.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithPrinter replaces guest.Print as the output.
func WithPrinter(fn func(string)) HandlerOption {
	return func(c *handlerConfig) {
		c.print = fn
	}
}

// NewHandler creates a new PrintHandler with the given options.
func NewHandler(opts ...HandlerOption) *PrintHandler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &PrintHandler{opts: cfg}
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrintHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level
}

// Handle formats the record and prints it.
func (h *PrintHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString("level=")
	b.WriteString(record.Level.String())
	b.WriteString(" msg=")
	b.WriteString(quote(record.Message))

	if h.opts.addSource && record.PC != 0 {
		src := record.Source()
		writeField(&b, field{Key: slog.SourceKey, Value: shortSource(src.File, src.Line)})
	}
	for _, f := range h.attrs {
		writeField(&b, f)
	}
	prefix := groupPrefix(h.groups)
	record.Attrs(func(attr slog.Attr) bool {
		for _, f := range toFields(prefix, attr) {
			writeField(&b, f)
		}
		return true
	})

	h.opts.print(b.String())
	return nil
}

// WithAttrs returns a new PrintHandler that includes the given attributes.
func (h *PrintHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	prefix := groupPrefix(h.groups)
	for _, attr := range attrs {
		next.attrs = append(next.attrs, toFields(prefix, attr)...)
	}
	return next
}

// WithGroup returns a new PrintHandler that qualifies later keys with name.
func (h *PrintHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.groups = append(next.groups, name)
	return next
}

func (h *PrintHandler) clone() *PrintHandler {
	return &PrintHandler{
		opts:   h.opts,
		attrs:  slices.Clone(h.attrs),
		groups: slices.Clone(h.groups),
	}
}

func groupPrefix(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	return strings.Join(groups, ".") + "."
}

// init configures the default slog handler to use the PrintHandler.
func init() {
	slog.SetDefault(slog.New(NewHandler()))
}
