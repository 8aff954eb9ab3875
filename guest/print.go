//go:build !wasip1

package guest

import (
	"fmt"
	"io"
	"os"
)

// printOutput receives Print output outside of a wasm guest.
var printOutput io.Writer = os.Stderr

// Print writes msg to stderr. Inside a wasm guest it goes to the host's log.
func Print(msg string) {
	fmt.Fprintln(printOutput, msg)
}
