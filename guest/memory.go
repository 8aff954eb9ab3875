package guest

import (
	"context"

	"github.com/quillmc/quill-abi/abi"
	"github.com/quillmc/quill-abi/wireformat"
)

// offsetMemory presents the guest heap in guest offsets, the only address
// width the wire format carries across the boundary.
type offsetMemory struct {
	heap  *abi.Heap
	addrs *addressTable
}

var _ wireformat.Memory[abi.Offset] = (*offsetMemory)(nil)

func newOffsetMemory(h *abi.Heap) *offsetMemory {
	return &offsetMemory{heap: h, addrs: newAddressTable()}
}

func (m *offsetMemory) Allocate(l abi.Layout) (abi.Offset, error) {
	p, err := m.heap.Allocate(l)
	if err != nil {
		return 0, err
	}
	off, err := m.addrs.offset(p, l)
	if err != nil {
		_ = m.heap.Deallocate(context.Background(), p, l)
		return 0, err
	}
	return off, nil
}

func (m *offsetMemory) Write(off abi.Offset, data []byte) error {
	p, err := m.addrs.native(off, uint32(len(data)))
	if err != nil {
		return err
	}
	return m.heap.Write(p, data)
}

func (m *offsetMemory) Read(off abi.Offset, n uint32) ([]byte, error) {
	p, err := m.addrs.native(off, n)
	if err != nil {
		return nil, err
	}
	return m.heap.Read(p, n)
}

func (m *offsetMemory) Deallocate(ctx context.Context, off abi.Offset, l abi.Layout) error {
	p, err := m.addrs.live(off, l)
	if err != nil {
		return err
	}
	if err := m.heap.Deallocate(ctx, p, l); err != nil {
		return err
	}
	m.addrs.forget(off)
	return nil
}

func (m *offsetMemory) reset() {
	m.heap.Reset()
	m.addrs.reset()
}
