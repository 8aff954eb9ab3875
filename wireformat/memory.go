package wireformat

import (
	"context"
	"encoding/binary"
	stdErrors "errors"
	"fmt"
	"math"

	"github.com/quillmc/quill-abi/abi"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

// Heap reads and releases memory addressed by A. Deallocate must fail when l
// is not the layout addr was allocated with.
type Heap[A abi.Address] interface {
	Read(addr A, n uint32) ([]byte, error)
	Deallocate(ctx context.Context, addr A, l abi.Layout) error
}

// Allocator reserves and fills memory addressed by A.
type Allocator[A abi.Address] interface {
	Allocate(l abi.Layout) (A, error)
	Write(addr A, data []byte) error
}

// Memory is a complete allocator for one side of the boundary.
type Memory[A abi.Address] interface {
	Heap[A]
	Allocator[A]
}

// GuestHeap is a heap addressed by guest offsets. On the host it is backed by
// the guest's linear memory and its exported free function.
type GuestHeap = Heap[abi.Offset]

var _ Memory[uintptr] = (*abi.Heap)(nil)

func putAddr[A abi.Address](b []byte, a A) {
	if abi.Width[A]() == 4 {
		binary.LittleEndian.PutUint32(b, uint32(a))
		return
	}
	binary.LittleEndian.PutUint64(b, uint64(a))
}

func getAddr[A abi.Address](b []byte) A {
	if abi.Width[A]() == 4 {
		return A(binary.LittleEndian.Uint32(b))
	}
	return A(binary.LittleEndian.Uint64(b))
}

func length32[A abi.Address](n A, typ string) (uint32, error) {
	if uint64(n) > math.MaxUint32 {
		return 0, &domainerrors.WireFormatError{
			Operation: "decode",
			Type:      typ,
			Err:       fmt.Errorf("length %d does not fit in 32 bits", uint64(n)),
		}
	}
	return uint32(n), nil
}

// allocate reserves l and fills it with data. A failed write releases the
// allocation again.
func allocate[A abi.Address](m Memory[A], l abi.Layout, data []byte, typ string) (A, error) {
	addr, err := m.Allocate(l)
	if err != nil {
		return 0, &domainerrors.WireFormatError{Operation: "encode", Type: typ, Err: err}
	}
	if len(data) > 0 {
		if err := m.Write(addr, data); err != nil {
			if ferr := m.Deallocate(context.Background(), addr, l); ferr != nil {
				err = stdErrors.Join(err, ferr)
			}
			return 0, &domainerrors.WireFormatError{Operation: "encode", Type: typ, Err: err}
		}
	}
	return addr, nil
}

func read[A abi.Address](h Heap[A], addr A, n uint32, typ string) ([]byte, error) {
	b, err := h.Read(addr, n)
	if err != nil {
		return nil, &domainerrors.WireFormatError{Operation: "decode", Type: typ, Err: err}
	}
	return b, nil
}
