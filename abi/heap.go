package abi

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"unsafe"

	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

// MaxTotalAllocations is the default cap on live bytes held by a Heap.
// This prevents unbounded growth when a peer never frees what it receives.
const MaxTotalAllocations = 100 * 1024 * 1024 // 100 MB

type allocation struct {
	buf    []byte // backing store; holding it keeps the memory pinned
	data   []byte // the aligned, exactly sized view handed out
	addr   uintptr
	layout Layout
}

// Heap is the allocator of the side it runs on. It hands out native addresses,
// keeps a reference to every allocation so the Go GC cannot collect it, and
// records the exact layout each allocation was made with so a deallocation
// with a different (size, align) is rejected instead of corrupting state.
//
// The host uses a Heap for HostOwned values; the Go guest SDK uses one as the
// allocator behind its exported free function.
type Heap struct {
	live   map[uintptr]*allocation
	starts []uintptr // sorted addresses of live allocations
	total  int
	limit  int
	mu     sync.Mutex
}

// HeapOption configures a Heap.
type HeapOption func(*Heap)

// WithLimit caps the number of live bytes. Zero or negative disables the cap.
func WithLimit(bytes int) HeapOption {
	return func(h *Heap) {
		h.limit = bytes
	}
}

// NewHeap creates an empty heap limited to MaxTotalAllocations by default.
func NewHeap(opts ...HeapOption) *Heap {
	h := &Heap{
		live:  make(map[uintptr]*allocation),
		limit: MaxTotalAllocations,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Allocate reserves l.Size bytes aligned to l.Align and returns their address.
// Zero-sized allocations still receive a unique address so that they can be
// freed like any other.
func (h *Heap) Allocate(l Layout) (uintptr, error) {
	if !l.Valid() {
		return 0, fmt.Errorf("abi: invalid alignment %d", l.Align)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limit > 0 && h.total+int(l.Size) > h.limit {
		return 0, &domainerrors.MemoryError{Requested: int(l.Size), Current: h.total, Limit: h.limit}
	}

	span := int(l.Size)
	if span == 0 {
		span = 1
	}
	buf := make([]byte, span+int(l.Align)-1)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	addr := (base + uintptr(l.Align) - 1) &^ (uintptr(l.Align) - 1)
	skip := int(addr - base)

	a := &allocation{
		buf:    buf,
		data:   buf[skip : skip+int(l.Size)],
		addr:   addr,
		layout: l,
	}
	h.live[addr] = a
	i, _ := slices.BinarySearch(h.starts, addr)
	h.starts = slices.Insert(h.starts, i, addr)
	h.total += int(l.Size)

	return addr, nil
}

// Write copies data into live memory starting at addr.
func (h *Heap) Write(addr uintptr, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	dst, err := h.span(addr, uint32(len(data))) //nolint:gosec // G115: bounded by allocation size check
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// Read returns a copy of n bytes of live memory starting at addr.
func (h *Heap) Read(addr uintptr, n uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	src, err := h.span(addr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, src)
	return out, nil
}

// Deallocate releases the allocation at addr. The layout must be the one the
// allocation was made with. The context is accepted for parity with guest
// allocators and is not consulted.
func (h *Heap) Deallocate(_ context.Context, addr uintptr, l Layout) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.live[addr]
	if !ok {
		return &domainerrors.LayoutMismatchError{Addr: uint64(addr), Size: l.Size, Align: l.Align}
	}
	if a.layout != l {
		return &domainerrors.LayoutMismatchError{
			Addr:      uint64(addr),
			Size:      l.Size,
			Align:     l.Align,
			LiveSize:  a.layout.Size,
			LiveAlign: a.layout.Align,
			Live:      true,
		}
	}

	delete(h.live, addr)
	if i, found := slices.BinarySearch(h.starts, addr); found {
		h.starts = slices.Delete(h.starts, i, i+1)
	}
	h.total -= int(a.layout.Size)
	return nil
}

// Stats returns the number of live allocations and their total size in bytes.
func (h *Heap) Stats() (count, bytes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live), h.total
}

// Reset drops every live allocation. Used during guest shutdown and panic
// recovery, never as a substitute for the free protocol.
func (h *Heap) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.live)
	h.starts = h.starts[:0]
	h.total = 0
}

// span locates the live allocation containing [addr, addr+n) and returns
// that range of its data. Caller holds h.mu.
func (h *Heap) span(addr uintptr, n uint32) ([]byte, error) {
	i, found := slices.BinarySearch(h.starts, addr)
	if !found {
		i--
	}
	if i < 0 {
		return nil, &domainerrors.AddressOutOfRangeError{Addr: uint64(addr), Length: n}
	}
	a := h.live[h.starts[i]]
	off := addr - a.addr
	if off > uintptr(len(a.data)) || uintptr(n) > uintptr(len(a.data))-off {
		return nil, &domainerrors.AddressOutOfRangeError{
			Addr:   uint64(addr),
			Length: n,
			Limit:  uint64(a.addr) + uint64(len(a.data)),
		}
	}
	return a.data[off : off+uintptr(n)], nil
}
