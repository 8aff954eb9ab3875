package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"slices"
	"sync"

	"github.com/quillmc/quill-abi/domain/entities"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
	"go.uber.org/zap"
)

// Pipeline runs the systems of several plugins, one stage at a time.
type Pipeline struct {
	logger  *zap.Logger
	plugins []*PluginInstance
	ticks   uint64
	mu      sync.Mutex
}

// NewPipeline creates a pipeline. A nil logger discards output.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{logger: logger}
}

// Add appends a plugin. Plugin names must be unique within a pipeline.
func (p *Pipeline) Add(plugin *PluginInstance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.plugins {
		if existing.Name() == plugin.Name() {
			return fmt.Errorf("plugin %s already in pipeline", plugin.Name())
		}
	}
	p.plugins = append(p.plugins, plugin)
	return nil
}

// Plugins returns the plugins still in the pipeline.
func (p *Pipeline) Plugins() []*PluginInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.plugins)
}

// Ticks returns the number of completed ticks.
func (p *Pipeline) Ticks() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

// Tick runs Pre, Tick, SendPackets and CleanUp across every registered
// plugin. A plugin that faults is removed from the pipeline and its error is
// part of the returned error; the remaining plugins keep running.
func (p *Pipeline) Tick(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, stage := range entities.Stages() {
		for _, plugin := range p.plugins {
			if plugin.State() != StateRegistered {
				continue
			}
			if err := plugin.RunStage(ctx, stage); err != nil {
				p.logger.Error("stage failed",
					zap.String("plugin", plugin.Name()),
					zap.Stringer("stage", stage),
					zap.Error(err))
				errs = append(errs, err)
			}
		}
	}

	p.plugins = slices.DeleteFunc(p.plugins, func(plugin *PluginInstance) bool {
		faulted := plugin.State() == StateFaulted
		if faulted {
			p.logger.Warn("plugin removed from pipeline", zap.String("plugin", plugin.Name()))
		}
		return faulted
	})
	p.ticks++

	return stdErrors.Join(errs...)
}

// Run performs n ticks. It stops early only if ctx is done.
func (p *Pipeline) Run(ctx context.Context, n int) error {
	var errs []error
	for range n {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.Tick(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}

// Close unregisters and closes every plugin in the pipeline.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, plugin := range p.plugins {
		if err := plugin.Close(ctx); err != nil && !stdErrors.Is(err, domainerrors.ErrInstanceClosed) {
			errs = append(errs, err)
		}
	}
	p.plugins = nil
	return stdErrors.Join(errs...)
}
