//go:build !wasm

package guest

import (
	"sync"

	"github.com/quillmc/quill-abi/abi"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

// firstOffset keeps 0 free as the null offset.
const firstOffset = 8

// addressTable hands out guest offsets for native heap pointers, which do
// not fit in 32 bits outside of wasm. Offsets are aligned like their
// allocation and never reused.
type addressTable struct {
	toNative map[abi.Offset]uintptr
	next     uint32
	mu       sync.Mutex
}

func newAddressTable() *addressTable {
	return &addressTable{toNative: make(map[abi.Offset]uintptr), next: firstOffset}
}

func (t *addressTable) offset(p uintptr, l abi.Layout) (abi.Offset, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	off := abi.AlignTo(t.next, l.Align)
	end, ok := abi.SafeAddU32(off, max(l.Size, 1))
	if off < t.next || !ok {
		return 0, &domainerrors.AddressOutOfRangeError{Addr: uint64(t.next), Length: l.Size, Limit: 1 << 32}
	}
	t.next = end
	t.toNative[abi.Offset(off)] = p
	return abi.Offset(off), nil
}

// native resolves the start of an allocation. The heap bounds-checks n.
func (t *addressTable) native(off abi.Offset, n uint32) (uintptr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.toNative[off]
	if !ok {
		return 0, &domainerrors.AddressOutOfRangeError{Addr: uint64(off), Length: n, Limit: uint64(t.next)}
	}
	return p, nil
}

func (t *addressTable) live(off abi.Offset, l abi.Layout) (uintptr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.toNative[off]
	if !ok {
		return 0, &domainerrors.LayoutMismatchError{Addr: uint64(off), Size: l.Size, Align: l.Align}
	}
	return p, nil
}

func (t *addressTable) forget(off abi.Offset) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.toNative, off)
}

func (t *addressTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.toNative)
	t.next = firstOffset
}
