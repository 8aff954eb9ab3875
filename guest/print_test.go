//go:build !wasip1

package guest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	old := printOutput
	printOutput = &buf
	t.Cleanup(func() { printOutput = old })

	Print("hello from guest")
	assert.Equal(t, "hello from guest\n", buf.String())
}
