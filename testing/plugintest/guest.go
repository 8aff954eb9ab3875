// Package plugintest provides in-process stand-ins for guest modules, for
// testing code that exchanges wire values with a guest.
package plugintest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/quillmc/quill-abi/abi"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

// PageSize is the size of a wasm memory page.
const PageSize = 64 * 1024

// Allocation is one allocation or deallocation seen by a FakeGuest.
type Allocation struct {
	Addr   abi.Offset
	Layout abi.Layout
}

// FakeGuest is a linear memory with a bump allocator that behaves like a
// guest's exported allocator: it hands out offsets, checks that every free
// matches a live allocation's layout and records the order of frees.
//
// Freed memory is never reused, and reading a freed range fails, so a test
// can detect a child being read after its parent was released.
type FakeGuest struct {
	mem    []byte
	live   map[abi.Offset]abi.Layout
	freed  []Allocation
	allocs []Allocation
	frees  []Allocation

	failAt  int
	failErr error
	next    uint32
	mu      sync.Mutex
}

// NewFakeGuest creates a guest memory of the given number of pages.
func NewFakeGuest(pages uint32) *FakeGuest {
	return &FakeGuest{
		mem:  make([]byte, pages*PageSize),
		live: make(map[abi.Offset]abi.Layout),
		// Offset 0 is never handed out.
		next: 8,
	}
}

// Allocate implements the guest allocator.
func (g *FakeGuest) Allocate(l abi.Layout) (abi.Offset, error) {
	if !l.Valid() {
		return 0, fmt.Errorf("plugintest: invalid alignment %d", l.Align)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	addr := abi.AlignTo(g.next, l.Align)
	span := max(l.Size, 1)
	if uint64(addr)+uint64(span) > uint64(len(g.mem)) {
		return 0, &domainerrors.MemoryError{Requested: int(l.Size), Current: int(g.next), Limit: len(g.mem)}
	}
	g.next = addr + span

	off := abi.Offset(addr)
	g.live[off] = l
	g.allocs = append(g.allocs, Allocation{Addr: off, Layout: l})
	return off, nil
}

// Write copies data into guest memory.
func (g *FakeGuest) Write(off abi.Offset, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if uint64(off)+uint64(len(data)) > uint64(len(g.mem)) {
		return &domainerrors.AddressOutOfRangeError{Addr: uint64(off), Length: uint32(len(data)), Limit: uint64(len(g.mem))} //nolint:gosec // test helper
	}
	copy(g.mem[off:], data)
	return nil
}

// Read returns a copy of guest memory. Reads overlapping freed memory fail.
func (g *FakeGuest) Read(off abi.Offset, n uint32) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.freed {
		if f.Layout.Size > 0 && n > 0 && off < f.Addr+abi.Offset(f.Layout.Size) && f.Addr < off+abi.Offset(n) {
			return nil, fmt.Errorf("plugintest: read of freed memory at 0x%x (freed allocation 0x%x)", off, f.Addr)
		}
	}
	return abi.NewWindow(g.bytes).Slice(off, n)
}

// Deallocate implements the guest's free export.
func (g *FakeGuest) Deallocate(_ context.Context, off abi.Offset, l abi.Layout) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.frees = append(g.frees, Allocation{Addr: off, Layout: l})
	if g.failAt > 0 && len(g.frees) == g.failAt {
		return g.failErr
	}

	live, ok := g.live[off]
	if !ok {
		return &domainerrors.LayoutMismatchError{Addr: uint64(off), Size: l.Size, Align: l.Align}
	}
	if live != l {
		return &domainerrors.LayoutMismatchError{
			Addr:      uint64(off),
			Size:      l.Size,
			Align:     l.Align,
			LiveSize:  live.Size,
			LiveAlign: live.Align,
			Live:      true,
		}
	}
	delete(g.live, off)
	g.freed = append(g.freed, Allocation{Addr: off, Layout: l})
	return nil
}

// FailFreeAt makes the n-th free call (counting from 1) return err.
func (g *FakeGuest) FailFreeAt(n int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failAt = n
	g.failErr = err
}

// Allocs returns every allocation in the order it was made.
func (g *FakeGuest) Allocs() []Allocation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.allocs)
}

// Frees returns every free call in the order it was made, including failed ones.
func (g *FakeGuest) Frees() []Allocation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.frees)
}

// LiveCount returns the number of allocations not yet freed.
func (g *FakeGuest) LiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// Grow adds pages to the memory, moving it like a real memory.grow may.
func (g *FakeGuest) Grow(pages uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grown := make([]byte, len(g.mem)+int(pages)*PageSize)
	copy(grown, g.mem)
	g.mem = grown
}

// Snapshot returns a copy of memory from offset 0 up to the last allocation.
func (g *FakeGuest) Snapshot() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.mem[:g.next])
}

// Window returns an address translation window over the current memory.
func (g *FakeGuest) Window() *abi.Window {
	return abi.NewWindow(func() []byte {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.mem
	})
}

// bytes is the window source used while g.mu is held.
func (g *FakeGuest) bytes() []byte {
	return g.mem
}
