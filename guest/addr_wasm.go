//go:build wasm

package guest

import (
	"math"

	"github.com/quillmc/quill-abi/abi"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

// addressTable is the identity on wasm: a Go pointer is its offset in
// linear memory.
type addressTable struct{}

func newAddressTable() *addressTable { return &addressTable{} }

func (*addressTable) offset(p uintptr, l abi.Layout) (abi.Offset, error) {
	if uint64(p)+uint64(l.Size) > math.MaxUint32+1 {
		return 0, &domainerrors.AddressOutOfRangeError{Addr: uint64(p), Length: l.Size, Limit: math.MaxUint32 + 1}
	}
	return abi.Offset(p), nil
}

func (*addressTable) native(off abi.Offset, _ uint32) (uintptr, error) {
	return uintptr(off), nil
}

func (*addressTable) live(off abi.Offset, _ abi.Layout) (uintptr, error) {
	return uintptr(off), nil
}

func (*addressTable) forget(abi.Offset) {}

func (*addressTable) reset() {}
