//go:build wasip1

package guest

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/quillmc/quill-abi/abi"
)

// setup is the guest's setup export. A failure traps, which the host turns
// into a faulted instance.
//
//go:wasmexport setup
func setup() uint32 {
	off, err := Setup(context.Background())
	if err != nil {
		panic(err)
	}
	return uint32(off)
}

// free is the guest's free export. A layout mismatch traps.
//
//go:wasmexport free
func free(ptr, size, align uint32) {
	if err := Free(context.Background(), abi.Offset(ptr), size, align); err != nil {
		panic(fmt.Sprintf("guest: free: %v", err))
	}
}

//go:wasmimport env print
func hostPrint(ptr unsafe.Pointer, length uint32)

// Print sends msg to the host's log.
func Print(msg string) {
	hostPrint(unsafe.Pointer(unsafe.StringData(msg)), uint32(len(msg)))
}
