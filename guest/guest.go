package guest

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sync"

	"github.com/quillmc/quill-abi/abi"
	"github.com/quillmc/quill-abi/domain/entities"
	"github.com/quillmc/quill-abi/wireformat"
)

// ErrNotRegistered is returned by Setup when no registration was declared.
var ErrNotRegistered = stdErrors.New("guest: no plugin registered")

type guestState struct {
	info *entities.PluginInfo
	heap *abi.Heap
	mem  *offsetMemory
	mu   sync.Mutex
}

var state = newGuestState()

func newGuestState() *guestState {
	heap := abi.NewHeap()
	return &guestState{heap: heap, mem: newOffsetMemory(heap)}
}

// Register declares the plugin's registration. It is validated immediately
// and replaces any earlier declaration.
func Register(info entities.PluginInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	state.info = &info
	return nil
}

// MustRegister is Register that panics on an invalid registration.
func MustRegister(info entities.PluginInfo) {
	if err := Register(info); err != nil {
		panic(fmt.Sprintf("guest: %v", err))
	}
}

// Registered returns the declared registration.
func Registered() (entities.PluginInfo, bool) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.info == nil {
		return entities.PluginInfo{}, false
	}
	return *state.info, true
}

// Setup encodes the registration on the guest heap and returns the offset
// of its root. Every level of the tree is a separate guest allocation; the
// host releases each one through Free.
func Setup(ctx context.Context) (abi.Offset, error) {
	info, ok := Registered()
	if !ok {
		return 0, ErrNotRegistered
	}
	box, err := wireformat.EncodeRegistration[abi.Offset](ctx, state.mem, info)
	if err != nil {
		return 0, fmt.Errorf("guest: setup: %w", err)
	}
	return box.Addr, nil
}

// Free releases an allocation made by this guest. size and align must be
// those the allocation was made with.
func Free(ctx context.Context, off abi.Offset, size, align uint32) error {
	return state.mem.Deallocate(ctx, off, abi.Layout{Size: size, Align: align})
}

// Memory returns the guest heap as the host addresses it: by 32-bit offset.
func Memory() wireformat.Memory[abi.Offset] {
	return state.mem
}

// Heap returns the native heap behind Memory.
func Heap() *abi.Heap {
	return state.heap
}

// reset clears all guest state. Used by tests.
func reset() {
	state.mu.Lock()
	state.info = nil
	state.mu.Unlock()
	state.mem.reset()
}
