package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sync"

	"github.com/quillmc/quill-abi/abi"
	"github.com/quillmc/quill-abi/domain/entities"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
	"github.com/quillmc/quill-abi/wireformat"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// ErrUnknownSystem is returned by RunSystem for a name the plugin did not declare.
var ErrUnknownSystem = stdErrors.New("unknown system")

// State is the lifecycle state of a PluginInstance.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateFaulted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateFaulted:
		return "faulted"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type registrationRoot = wireformat.GuestOwned[wireformat.Box[wireformat.Registration[abi.Offset], abi.Offset]]

// registration is everything the host holds while a plugin is Registered.
type registration struct {
	root     registrationRoot
	info     entities.PluginInfo
	dispatch map[string]api.Function
}

// PluginInstance is one instantiated guest module. All methods are safe for
// concurrent use; calls into the guest are serialized.
type PluginInstance struct {
	module    api.Module
	setup     api.Function
	heap      *guestHeap
	logger    *zap.Logger
	reg       *registration
	name      string
	setupName string
	state     State
	mu        sync.Mutex
}

func newPluginInstance(mod api.Module, name, setupName string, setup api.Function, freeName string, free api.Function, logger *zap.Logger) *PluginInstance {
	return &PluginInstance{
		module:    mod,
		setup:     setup,
		heap:      &guestHeap{module: mod, free: free, plugin: name, freeName: freeName},
		logger:    logger.With(zap.String("plugin", name)),
		name:      name,
		setupName: setupName,
		state:     StateUnregistered,
	}
}

// Name returns the module name the plugin was loaded under.
func (p *PluginInstance) Name() string {
	return p.name
}

// State returns the current lifecycle state.
func (p *PluginInstance) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Info returns the registration read at setup, if the plugin is Registered.
func (p *PluginInstance) Info() (entities.PluginInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reg == nil {
		return entities.PluginInfo{}, false
	}
	return p.reg.info, true
}

// Systems returns the names of the systems declared for stage, in
// declaration order.
func (p *PluginInstance) Systems(stage entities.Stage) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reg == nil {
		return nil
	}
	var names []string
	for _, s := range p.reg.info.SystemsAt(stage) {
		names = append(names, s.Name)
	}
	return names
}

// Setup calls the guest's setup export and takes ownership of the returned
// registration. A second Setup while Registered fails with
// ErrAlreadyRegistered without calling into the guest.
//
// If the registration is well formed but invalid, or declares a system the
// guest does not export, it is freed again before Setup returns the error.
func (p *PluginInstance) Setup(ctx context.Context) (entities.PluginInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.usable(); err != nil {
		return entities.PluginInfo{}, err
	}
	if p.reg != nil {
		return entities.PluginInfo{}, fmt.Errorf("setup %s: %w", p.name, domainerrors.ErrAlreadyRegistered)
	}

	results, err := p.setup.Call(ctx)
	if err != nil {
		return entities.PluginInfo{}, p.fault(ctx, &domainerrors.GuestCallError{Plugin: p.name, Export: p.setupName, Err: err})
	}
	if len(results) != 1 {
		return entities.PluginInfo{}, p.fault(ctx, &domainerrors.GuestCallError{
			Plugin: p.name,
			Export: p.setupName,
			Err:    fmt.Errorf("expected 1 result, got %d", len(results)),
		})
	}

	root := wireformat.AdoptGuestRegistration(abi.Offset(api.DecodeU32(results[0])))
	reg, err := root.Value().Load(p.heap)
	if err != nil {
		return entities.PluginInfo{}, p.fault(ctx, fmt.Errorf("load registration: %w", err))
	}

	info, err := wireformat.DecodeRegistration(p.heap, reg)
	if err != nil {
		return entities.PluginInfo{}, p.abandon(ctx, root, fmt.Errorf("decode registration: %w", err))
	}
	if err := info.Validate(); err != nil {
		return entities.PluginInfo{}, p.abandon(ctx, root, err)
	}

	dispatch := make(map[string]api.Function, len(info.Systems))
	for _, s := range info.Systems {
		fn := p.module.ExportedFunction(s.Name)
		if fn == nil {
			return entities.PluginInfo{}, p.abandon(ctx, root, &domainerrors.MissingExportError{Plugin: p.name, Export: s.Name})
		}
		dispatch[s.Name] = fn
	}

	p.reg = &registration{root: root, info: info, dispatch: dispatch}
	p.state = StateRegistered
	p.logger.Debug("plugin registered",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
		zap.Int("systems", len(info.Systems)))

	return info, nil
}

// RunStage invokes every system declared for stage, in declaration order.
// It stops at the first failing system.
func (p *PluginInstance) RunStage(ctx context.Context, stage entities.Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.registered(); err != nil {
		return err
	}
	for _, s := range p.reg.info.SystemsAt(stage) {
		if err := p.invoke(ctx, s.Name); err != nil {
			return err
		}
	}
	return nil
}

// RunSystem invokes a single declared system by name.
func (p *PluginInstance) RunSystem(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.registered(); err != nil {
		return err
	}
	if _, ok := p.reg.dispatch[name]; !ok {
		return fmt.Errorf("plugin %s: %w %q", p.name, ErrUnknownSystem, name)
	}
	return p.invoke(ctx, name)
}

// Unregister releases the registration through the guest's free export.
// Systems can no longer be dispatched once Unregister has started.
func (p *PluginInstance) Unregister(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.registered(); err != nil {
		return err
	}
	return p.unregister(ctx)
}

// Close unregisters the plugin if needed and closes its module.
func (p *PluginInstance) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateClosed:
		return nil
	case StateFaulted:
		p.state = StateClosed
		return nil
	}

	var err error
	if p.reg != nil {
		err = p.unregister(ctx)
		if p.state == StateFaulted {
			p.state = StateClosed
			return err
		}
	}
	p.state = StateClosed
	if cerr := p.module.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

func (p *PluginInstance) unregister(ctx context.Context) error {
	reg := p.reg
	p.reg = nil
	p.state = StateUnregistered

	if err := reg.root.Free(ctx, p.heap); err != nil {
		return p.fault(ctx, fmt.Errorf("free registration: %w", err))
	}
	p.logger.Debug("plugin unregistered")
	return nil
}

func (p *PluginInstance) invoke(ctx context.Context, name string) error {
	if _, err := p.reg.dispatch[name].Call(ctx); err != nil {
		return p.fault(ctx, &domainerrors.GuestCallError{Plugin: p.name, Export: name, Err: err})
	}
	return nil
}

// abandon frees a registration the host will not keep and returns cause.
func (p *PluginInstance) abandon(ctx context.Context, root registrationRoot, cause error) error {
	if domainerrors.Fatal(cause) {
		return p.fault(ctx, cause)
	}
	if err := root.Free(ctx, p.heap); err != nil {
		return p.fault(ctx, stdErrors.Join(cause, fmt.Errorf("free registration: %w", err)))
	}
	return cause
}

// fault marks the instance unusable and closes its module. Caller holds p.mu.
func (p *PluginInstance) fault(ctx context.Context, cause error) error {
	p.state = StateFaulted
	p.reg = nil

	detail := domainerrors.ToErrorDetail(cause)
	p.logger.Error("plugin faulted",
		zap.Error(cause),
		zap.String("type", detail.Type),
		zap.String("code", detail.Code),
		zap.String("path", detail.Path))

	if err := p.module.Close(ctx); err != nil {
		p.logger.Warn("close faulted module", zap.Error(err))
	}
	return fmt.Errorf("plugin %s: %w: %w", p.name, domainerrors.ErrInstanceFaulted, cause)
}

func (p *PluginInstance) usable() error {
	switch p.state {
	case StateFaulted:
		return fmt.Errorf("plugin %s: %w", p.name, domainerrors.ErrInstanceFaulted)
	case StateClosed:
		return fmt.Errorf("plugin %s: %w", p.name, domainerrors.ErrInstanceClosed)
	}
	return nil
}

func (p *PluginInstance) registered() error {
	if err := p.usable(); err != nil {
		return err
	}
	if p.reg == nil {
		return fmt.Errorf("plugin %s: %w", p.name, domainerrors.ErrNotRegistered)
	}
	return nil
}
