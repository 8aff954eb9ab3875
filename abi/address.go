package abi

import (
	"fmt"
	"math"
	"math/bits"
	"unsafe"
)

// Offset is an address in a guest's linear memory.
type Offset uint32

// Address is the set of address representations the wire types are
// parameterised by: guest offsets and native host pointers.
type Address interface {
	~uint32 | ~uintptr
}

// Width returns the byte width of the address representation A.
func Width[A Address]() uint32 {
	var a A
	return uint32(unsafe.Sizeof(a))
}

// Layout is the (size, alignment) pair of an allocation. Both sides of the
// boundary must compute the same Layout for the same value.
type Layout struct {
	Size  uint32
	Align uint32
}

// LayoutOf returns the layout of a single address of representation A.
func LayoutOf[A Address]() Layout {
	w := Width[A]()
	return Layout{Size: w, Align: w}
}

// Valid reports whether the alignment is a non-zero power of two.
func (l Layout) Valid() bool {
	return l.Align != 0 && bits.OnesCount32(l.Align) == 1
}

// Array returns the layout of n contiguous elements of l.
func (l Layout) Array(n uint32) (Layout, error) {
	size, ok := SafeMulU32(AlignTo(l.Size, l.Align), n)
	if !ok {
		return Layout{}, fmt.Errorf("array of %d elements of size %d overflows", n, l.Size)
	}
	return Layout{Size: size, Align: l.Align}, nil
}

func (l Layout) String() string {
	return fmt.Sprintf("{size %d, align %d}", l.Size, l.Align)
}

// AlignTo rounds offset up to the next multiple of align.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func SafeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

func SafeAddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}
