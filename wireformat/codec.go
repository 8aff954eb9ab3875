package wireformat

import (
	"context"
	stdErrors "errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/quillmc/quill-abi/abi"
	"github.com/quillmc/quill-abi/domain/entities"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

// ErrInvalidUTF8 is wrapped by DecodeString when the bytes are not UTF-8.
var ErrInvalidUTF8 = stdErrors.New("invalid UTF-8")

// NewString copies s into a single allocation of exactly len(s) bytes.
func NewString[A abi.Address](m Memory[A], s string) (String[A], error) {
	if uint64(len(s)) > math.MaxUint32 {
		return String[A]{}, &domainerrors.WireFormatError{
			Operation: "encode",
			Type:      "string",
			Err:       fmt.Errorf("length %d does not fit in 32 bits", len(s)),
		}
	}
	l := abi.Layout{Size: uint32(len(s)), Align: 1}
	ptr, err := allocate(m, l, []byte(s), "string")
	if err != nil {
		return String[A]{}, err
	}
	return String[A]{Ptr: ptr, Len: A(len(s))}, nil
}

// NewSlice encodes elems into a single buffer of len(elems) elements.
// An empty slice still owns a (zero sized) buffer.
func NewSlice[T Element[T, A], A abi.Address](m Memory[A], elems []T) (Slice[T, A], error) {
	if uint64(len(elems)) > math.MaxUint32 {
		return Slice[T, A]{}, &domainerrors.WireFormatError{
			Operation: "encode",
			Type:      "slice",
			Err:       fmt.Errorf("length %d does not fit in 32 bits", len(elems)),
		}
	}
	var zero T
	l, err := zero.Layout().Array(uint32(len(elems)))
	if err != nil {
		return Slice[T, A]{}, &domainerrors.WireFormatError{Operation: "encode", Type: "slice", Err: err}
	}

	buf := make([]byte, l.Size)
	step := stride[T, A]()
	for i, el := range elems {
		el.encode(buf[uint32(i)*step:])
	}

	ptr, err := allocate(m, l, buf, "slice")
	if err != nil {
		return Slice[T, A]{}, err
	}
	return Slice[T, A]{Len: A(len(elems)), Elements: ptr}, nil
}

// NewBox moves v into its own allocation.
func NewBox[T Element[T, A], A abi.Address](m Memory[A], v T) (Box[T, A], error) {
	l := v.Layout()
	buf := make([]byte, l.Size)
	v.encode(buf)

	addr, err := allocate(m, l, buf, "box")
	if err != nil {
		return Box[T, A]{}, err
	}
	return Box[T, A]{Addr: addr}, nil
}

// EncodeRegistration validates info and builds its wire tree on m. If any
// allocation fails, everything allocated so far is released again.
func EncodeRegistration[A abi.Address](ctx context.Context, m Memory[A], info entities.PluginInfo) (Box[Registration[A], A], error) {
	if err := info.Validate(); err != nil {
		return Box[Registration[A], A]{}, &domainerrors.WireFormatError{Operation: "encode", Type: "registration", Err: err}
	}

	var owned []Value[A]
	fail := func(err error) (Box[Registration[A], A], error) {
		for i := len(owned) - 1; i >= 0; i-- {
			_ = owned[i].release(ctx, m, "")
		}
		return Box[Registration[A], A]{}, err
	}

	name, err := NewString[A](m, info.Name)
	if err != nil {
		return fail(err)
	}
	owned = append(owned, name)

	version, err := NewString[A](m, info.Version)
	if err != nil {
		return fail(err)
	}
	owned = append(owned, version)

	systems := make([]System[A], 0, len(info.Systems))
	for _, s := range info.Systems {
		sn, err := NewString[A](m, s.Name)
		if err != nil {
			return fail(err)
		}
		owned = append(owned, sn)
		systems = append(systems, System[A]{Stage: s.Stage, Name: sn})
	}

	slice, err := NewSlice[System[A], A](m, systems)
	if err != nil {
		return fail(err)
	}
	// The slice now owns the system names.
	owned = append(owned[:2], slice)

	reg := Registration[A]{Name: name, Version: version, Systems: slice}
	box, err := NewBox[Registration[A], A](m, reg)
	if err != nil {
		return fail(err)
	}
	return box, nil
}

// NewHostString allocates s on the host heap.
func NewHostString(h *abi.Heap, s string) (HostOwned[String[uintptr]], error) {
	v, err := NewString[uintptr](h, s)
	if err != nil {
		return HostOwned[String[uintptr]]{}, err
	}
	return HostOwned[String[uintptr]]{value: v}, nil
}

// NewHostSlice allocates elems on the host heap. Ownership of anything the
// elements point to moves into the returned slice.
func NewHostSlice[T Element[T, uintptr]](h *abi.Heap, elems []T) (HostOwned[Slice[T, uintptr]], error) {
	v, err := NewSlice[T, uintptr](h, elems)
	if err != nil {
		return HostOwned[Slice[T, uintptr]]{}, err
	}
	return HostOwned[Slice[T, uintptr]]{value: v}, nil
}

// NewHostRegistration builds a registration tree on the host heap.
func NewHostRegistration(ctx context.Context, h *abi.Heap, info entities.PluginInfo) (HostOwned[Box[Registration[uintptr], uintptr]], error) {
	v, err := EncodeRegistration[uintptr](ctx, h, info)
	if err != nil {
		return HostOwned[Box[Registration[uintptr], uintptr]]{}, err
	}
	return HostOwned[Box[Registration[uintptr], uintptr]]{value: v}, nil
}

// DecodeString reads the bytes of s and checks they are UTF-8.
func DecodeString[A abi.Address](h Heap[A], s String[A]) (string, error) {
	n, err := length32(s.Len, "string")
	if err != nil {
		return "", err
	}
	b, err := read(h, s.Ptr, n, "string")
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &domainerrors.WireFormatError{Operation: "decode", Type: "string", Err: ErrInvalidUTF8}
	}
	return string(b), nil
}

// DecodeSlice reads the elements of s.
func DecodeSlice[T Element[T, A], A abi.Address](h Heap[A], s Slice[T, A]) ([]T, error) {
	l, err := s.BufferLayout()
	if err != nil {
		return nil, err
	}
	n := uint32(s.Len)
	out := make([]T, 0, n)
	if l.Size == 0 {
		var zero T
		for range n {
			out = append(out, zero)
		}
		return out, nil
	}

	raw, err := read(h, s.Elements, l.Size, "slice")
	if err != nil {
		return nil, err
	}
	var zero T
	step := stride[T, A]()
	for i := range n {
		out = append(out, zero.decode(raw[i*step:]))
	}
	return out, nil
}

// DecodeRegistration copies r into an entities.PluginInfo. It does not
// validate the result.
func DecodeRegistration[A abi.Address](h Heap[A], r Registration[A]) (entities.PluginInfo, error) {
	var info entities.PluginInfo

	name, err := DecodeString(h, r.Name)
	if err != nil {
		return info, fmt.Errorf("name: %w", err)
	}
	version, err := DecodeString(h, r.Version)
	if err != nil {
		return info, fmt.Errorf("version: %w", err)
	}
	systems, err := DecodeSlice(h, r.Systems)
	if err != nil {
		return info, fmt.Errorf("systems: %w", err)
	}

	info.Name = name
	info.Version = version
	info.Systems = make([]entities.SystemInfo, 0, len(systems))
	for i, s := range systems {
		sn, err := DecodeString(h, s.Name)
		if err != nil {
			return info, fmt.Errorf("systems[%d].name: %w", i, err)
		}
		info.Systems = append(info.Systems, entities.SystemInfo{Name: sn, Stage: s.Stage})
	}
	return info, nil
}
