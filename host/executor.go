package host

import (
	"context"
	"fmt"
	"io"

	domainerrors "github.com/quillmc/quill-abi/domain/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// Executor manages the wazero runtime guest plugins are loaded into.
type Executor struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	logger  *zap.Logger
	stdout  io.Writer
	stderr  io.Writer

	setupExport      string
	freeExport       string
	cacheDir         string
	memoryLimitPages uint32
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	e := &Executor{
		logger:      zap.NewNop(),
		stdout:      io.Discard,
		stderr:      io.Discard,
		setupExport: DefaultSetupExport,
		freeExport:  DefaultFreeExport,
	}
	for _, opt := range opts {
		opt(e)
	}

	rtConfig := wazero.NewRuntimeConfig()
	if e.cacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(e.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create compilation cache: %w", err)
		}
		e.cache = cache
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if e.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(e.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	e.runtime = rt

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = e.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}
	if err := e.registerHostFunctions(ctx); err != nil {
		_ = e.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return e, nil
}

// Close releases resources held by the executor, including every module
// still instantiated in it.
func (e *Executor) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// LoadPlugin compiles and instantiates a guest module under name. The
// instance starts Unregistered; call Setup to obtain its registration.
func (e *Executor) LoadPlugin(ctx context.Context, name string, wasmBytes []byte, opts ...LoadOption) (*PluginInstance, error) {
	exports := loadConfig{setup: e.setupExport, free: e.freeExport}
	for _, opt := range opts {
		opt(&exports)
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plugin %s: %w", name, err)
	}
	defer compiled.Close(ctx)

	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStdout(e.stdout).
		WithStderr(e.stderr).
		WithStartFunctions()

	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate plugin %s: %w", name, err)
	}

	// Reactor guests (Go c-shared, Rust cdylib) initialise their runtime here.
	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, &domainerrors.GuestCallError{Plugin: name, Export: "_initialize", Err: err}
		}
	}

	setup, free, err := requireExports(mod, name, exports)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}

	e.logger.Debug("plugin loaded",
		zap.String("plugin", name),
		zap.Uint32("memory_bytes", mod.Memory().Size()))

	return newPluginInstance(mod, name, exports.setup, setup, exports.free, free, e.logger), nil
}

func requireExports(mod api.Module, name string, exports loadConfig) (setup, free api.Function, err error) {
	if mod.Memory() == nil {
		return nil, nil, &domainerrors.MissingExportError{Plugin: name, Export: "memory"}
	}
	if setup = mod.ExportedFunction(exports.setup); setup == nil {
		return nil, nil, &domainerrors.MissingExportError{Plugin: name, Export: exports.setup}
	}
	if free = mod.ExportedFunction(exports.free); free == nil {
		return nil, nil, &domainerrors.MissingExportError{Plugin: name, Export: exports.free}
	}
	return setup, free, nil
}
