package host

import (
	"io"

	"go.uber.org/zap"
)

// Default names of the exports every guest must provide.
const (
	DefaultSetupExport = "setup"
	DefaultFreeExport  = "free"
)

// Option defines a functional option for configuring the Executor.
type Option func(*Executor)

// WithLogger sets the logger used for guest output and instance faults.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMemoryLimit caps every guest's linear memory, in 64 KiB pages.
// Zero keeps the wazero default.
func WithMemoryLimit(pages uint32) Option {
	return func(e *Executor) {
		e.memoryLimitPages = pages
	}
}

// WithCompilationCache persists compiled modules in dir.
func WithCompilationCache(dir string) Option {
	return func(e *Executor) {
		e.cacheDir = dir
	}
}

// WithExportNames overrides the names of the setup and free exports.
// Empty names keep the defaults.
func WithExportNames(setup, free string) Option {
	return func(e *Executor) {
		if setup != "" {
			e.setupExport = setup
		}
		if free != "" {
			e.freeExport = free
		}
	}
}

// WithStdout routes the guests' WASI stdout to w.
func WithStdout(w io.Writer) Option {
	return func(e *Executor) {
		e.stdout = w
	}
}

// WithStderr routes the guests' WASI stderr to w.
func WithStderr(w io.Writer) Option {
	return func(e *Executor) {
		e.stderr = w
	}
}

// LoadOption configures a single LoadPlugin call.
type LoadOption func(*loadConfig)

type loadConfig struct {
	setup string
	free  string
}

// WithPluginExports overrides the setup and free export names for one
// plugin. Empty names keep the executor's names.
func WithPluginExports(setup, free string) LoadOption {
	return func(c *loadConfig) {
		if setup != "" {
			c.setup = setup
		}
		if free != "" {
			c.free = free
		}
	}
}
