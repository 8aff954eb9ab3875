package wireformat

import (
	"context"

	"github.com/quillmc/quill-abi/abi"
	"github.com/quillmc/quill-abi/domain/entities"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

// Value is implemented by every wire type. The method set is sealed: release
// is the package's free protocol and cannot be provided from outside.
type Value[A abi.Address] interface {
	Layout() abi.Layout
	release(ctx context.Context, h Heap[A], path string) error
}

// Element is a wire type that can be stored inline, e.g. in a slice buffer.
type Element[T any, A abi.Address] interface {
	Value[A]
	encode(b []byte)
	decode(b []byte) T
}

// String is a UTF-8 byte range: {ptr, len}.
type String[A abi.Address] struct {
	Ptr A
	Len A
}

func (String[A]) Layout() abi.Layout {
	w := abi.Width[A]()
	return abi.Layout{Size: 2 * w, Align: w}
}

func (s String[A]) encode(b []byte) {
	putAddr(b, s.Ptr)
	putAddr(b[abi.Width[A]():], s.Len)
}

func (String[A]) decode(b []byte) String[A] {
	return String[A]{
		Ptr: getAddr[A](b),
		Len: getAddr[A](b[abi.Width[A]():]),
	}
}

// Slice is a contiguous run of Len elements of T: {len, elements}. Stride and
// alignment come from T's layout only.
type Slice[T Element[T, A], A abi.Address] struct {
	Len      A
	Elements A
}

func (Slice[T, A]) Layout() abi.Layout {
	w := abi.Width[A]()
	return abi.Layout{Size: 2 * w, Align: w}
}

func (s Slice[T, A]) encode(b []byte) {
	putAddr(b, s.Len)
	putAddr(b[abi.Width[A]():], s.Elements)
}

func (Slice[T, A]) decode(b []byte) Slice[T, A] {
	return Slice[T, A]{
		Len:      getAddr[A](b),
		Elements: getAddr[A](b[abi.Width[A]():]),
	}
}

// BufferLayout is the layout of the element buffer: (stride*len, align of T).
func (s Slice[T, A]) BufferLayout() (abi.Layout, error) {
	n, err := length32(s.Len, "slice")
	if err != nil {
		return abi.Layout{}, err
	}
	var zero T
	l, err := zero.Layout().Array(n)
	if err != nil {
		return abi.Layout{}, &domainerrors.WireFormatError{Operation: "decode", Type: "slice", Err: err}
	}
	return l, nil
}

func stride[T Element[T, A], A abi.Address]() uint32 {
	var zero T
	l := zero.Layout()
	return abi.AlignTo(l.Size, l.Align)
}

// System declares one guest callback and the stage it runs at.
// Layout: stage (u8) at 0, name at the address width.
type System[A abi.Address] struct {
	Stage entities.Stage
	Name  String[A]
}

func (System[A]) Layout() abi.Layout {
	w := abi.Width[A]()
	return abi.Layout{Size: 3 * w, Align: w}
}

func (s System[A]) encode(b []byte) {
	w := abi.Width[A]()
	b[0] = byte(s.Stage)
	clear(b[1:w])
	s.Name.encode(b[w:])
}

func (System[A]) decode(b []byte) System[A] {
	return System[A]{
		Stage: entities.Stage(b[0]),
		Name:  String[A]{}.decode(b[abi.Width[A]():]),
	}
}

// Registration is the value returned by a guest's setup export and the root
// of everything the guest hands to the host.
type Registration[A abi.Address] struct {
	Name    String[A]
	Version String[A]
	Systems Slice[System[A], A]
}

func (Registration[A]) Layout() abi.Layout {
	w := abi.Width[A]()
	return abi.Layout{Size: 6 * w, Align: w}
}

func (r Registration[A]) encode(b []byte) {
	w := abi.Width[A]()
	r.Name.encode(b)
	r.Version.encode(b[2*w:])
	r.Systems.encode(b[4*w:])
}

func (Registration[A]) decode(b []byte) Registration[A] {
	w := abi.Width[A]()
	return Registration[A]{
		Name:    String[A]{}.decode(b),
		Version: String[A]{}.decode(b[2*w:]),
		Systems: Slice[System[A], A]{}.decode(b[4*w:]),
	}
}

// Box points to a single heap allocated T.
type Box[T Element[T, A], A abi.Address] struct {
	Addr A
}

func (Box[T, A]) Layout() abi.Layout {
	return abi.LayoutOf[A]()
}

// Load reads the boxed value.
func (b Box[T, A]) Load(h Heap[A]) (T, error) {
	var zero T
	raw, err := read(h, b.Addr, zero.Layout().Size, "box")
	if err != nil {
		return zero, err
	}
	return zero.decode(raw), nil
}
