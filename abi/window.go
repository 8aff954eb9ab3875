package abi

import (
	"unsafe"

	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

// Window is a snapshot of a guest's linear memory used to translate between
// native host pointers and guest offsets.
//
// A Window is only good for as long as the memory it was taken from is not
// grown or moved. Every translation re-checks the source and fails with
// AddressOutOfRangeError (Stale set) once that happens, so an old window can
// never yield a dangling pointer. Take a fresh window per guest call.
type Window struct {
	source func() []byte
	buf    []byte
	base   uintptr
}

// NewWindow snapshots the buffer returned by source. source must return the
// guest memory's current backing buffer each time it is called.
func NewWindow(source func() []byte) *Window {
	buf := source()
	return &Window{source: source, buf: buf, base: baseOf(buf)}
}

func baseOf(b []byte) uintptr {
	if cap(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// Base returns the native address of guest offset 0.
func (w *Window) Base() uintptr {
	return w.base
}

// Size returns the size of the memory in bytes at snapshot time.
func (w *Window) Size() uint32 {
	return uint32(len(w.buf)) //nolint:gosec // G115: wasm32 memories are at most 4 GiB
}

// Valid reports whether the memory is still the one the window was taken from.
func (w *Window) Valid() bool {
	cur := w.source()
	return len(cur) == len(w.buf) && baseOf(cur) == w.base
}

// ToGuestOffset translates a native pointer inside the guest memory into
// the guest's offset for it. It is the inverse of ToNativePtr, for native
// callers that hold pointers into guest memory; the host itself only goes
// from offsets to bytes, through Slice.
func (w *Window) ToGuestOffset(p uintptr) (Offset, error) {
	if !w.Valid() {
		return 0, &domainerrors.AddressOutOfRangeError{Addr: uint64(p), Stale: true}
	}
	if p < w.base || p-w.base >= uintptr(len(w.buf)) {
		return 0, &domainerrors.AddressOutOfRangeError{
			Addr:  uint64(p),
			Limit: uint64(w.base) + uint64(len(w.buf)),
		}
	}
	return Offset(p - w.base), nil
}

// ToNativePtr translates a guest offset into a native pointer.
func (w *Window) ToNativePtr(off Offset) (uintptr, error) {
	if !w.Valid() {
		return 0, &domainerrors.AddressOutOfRangeError{Addr: uint64(off), Stale: true}
	}
	if uint64(off) >= uint64(len(w.buf)) {
		return 0, &domainerrors.AddressOutOfRangeError{Addr: uint64(off), Limit: uint64(len(w.buf))}
	}
	return w.base + uintptr(off), nil
}

// Slice returns a copy of n guest bytes starting at off.
func (w *Window) Slice(off Offset, n uint32) ([]byte, error) {
	if !w.Valid() {
		return nil, &domainerrors.AddressOutOfRangeError{Addr: uint64(off), Length: n, Stale: true}
	}
	if uint64(off)+uint64(n) > uint64(len(w.buf)) {
		return nil, &domainerrors.AddressOutOfRangeError{Addr: uint64(off), Length: n, Limit: uint64(len(w.buf))}
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	p, err := w.ToNativePtr(off)
	if err != nil {
		return nil, err
	}
	copy(out, w.buf[p-w.base:])
	return out, nil
}
