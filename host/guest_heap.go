package host

import (
	"context"

	"github.com/quillmc/quill-abi/abi"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
	"github.com/quillmc/quill-abi/wireformat"
	"github.com/tetratelabs/wazero/api"
)

// guestHeap is the host's view of a guest allocator. Reads go through a
// fresh window per access; deallocations call the guest's free export.
type guestHeap struct {
	module   api.Module
	free     api.Function
	plugin   string
	freeName string
}

var _ wireformat.GuestHeap = (*guestHeap)(nil)

func (h *guestHeap) Read(off abi.Offset, n uint32) ([]byte, error) {
	return memoryWindow(h.module.Memory()).Slice(off, n)
}

func (h *guestHeap) Deallocate(ctx context.Context, off abi.Offset, l abi.Layout) error {
	_, err := h.free.Call(ctx, api.EncodeU32(uint32(off)), api.EncodeU32(l.Size), api.EncodeU32(l.Align))
	if err != nil {
		return &domainerrors.GuestCallError{Plugin: h.plugin, Export: h.freeName, Err: err}
	}
	return nil
}
