package wireformat

import (
	"context"

	"github.com/quillmc/quill-abi/abi"
)

// HostOwned is a value allocated on the host's own heap. It can only be
// freed with that heap.
type HostOwned[V Value[uintptr]] struct {
	value V
}

// Value returns the wrapped wire value.
func (o HostOwned[V]) Value() V {
	return o.value
}

// Borrow returns a read-only view. The view must not outlive o.
func (o HostOwned[V]) Borrow() Borrowed[V] {
	return Borrowed[V]{value: o.value}
}

// Free applies the recursive free protocol to o on the host heap. o must not
// be used afterwards.
func (o HostOwned[V]) Free(ctx context.Context, h *abi.Heap) error {
	return o.value.release(ctx, h, "")
}

// GuestOwned is a value the guest allocated and handed to the host. It can
// only be freed through the guest's own free function.
type GuestOwned[V Value[abi.Offset]] struct {
	value V
}

// AdoptGuest takes ownership of a value returned by a guest export.
func AdoptGuest[V Value[abi.Offset]](v V) GuestOwned[V] {
	return GuestOwned[V]{value: v}
}

// AdoptGuestRegistration takes ownership of the registration at off, as
// returned by a guest's setup export.
func AdoptGuestRegistration(off abi.Offset) GuestOwned[Box[Registration[abi.Offset], abi.Offset]] {
	return AdoptGuest(Box[Registration[abi.Offset], abi.Offset]{Addr: off})
}

func (o GuestOwned[V]) Value() V {
	return o.value
}

func (o GuestOwned[V]) Borrow() Borrowed[V] {
	return Borrowed[V]{value: o.value}
}

// Free applies the recursive free protocol to o through the guest's heap.
// o must not be used afterwards.
func (o GuestOwned[V]) Free(ctx context.Context, h GuestHeap) error {
	return o.value.release(ctx, h, "")
}

// Borrowed is a value lent for the duration of a call. It cannot be freed.
type Borrowed[V any] struct {
	value V
}

// Borrow wraps v as a borrowed value.
func Borrow[V any](v V) Borrowed[V] {
	return Borrowed[V]{value: v}
}

func (b Borrowed[V]) Value() V {
	return b.value
}

// Static is a value that lives for the whole process. It is never freed.
type Static[V any] struct {
	value V
}

// NewStatic wraps v as a static value.
func NewStatic[V any](v V) Static[V] {
	return Static[V]{value: v}
}

func (s Static[V]) Value() V {
	return s.value
}

func (s Static[V]) Borrow() Borrowed[V] {
	return Borrowed[V]{value: s.value}
}
