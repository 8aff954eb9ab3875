package plugintest

import (
	"testing"

	"github.com/quillmc/quill-abi/abi"
	"github.com/stretchr/testify/assert"
)

// AssertAllFreed asserts that every allocation was freed exactly once with
// the layout it was made with.
func AssertAllFreed(t *testing.T, g *FakeGuest) {
	t.Helper()

	allocs := g.Allocs()
	frees := g.Frees()
	assert.ElementsMatch(t, allocs, frees, "each allocation must be freed exactly once with its own layout")
	assert.Zero(t, g.LiveCount(), "live allocations remain")
}

// AssertFreedBefore asserts that child was freed strictly before parent.
func AssertFreedBefore(t *testing.T, g *FakeGuest, child, parent abi.Offset) {
	t.Helper()

	ci, pi := -1, -1
	for i, f := range g.Frees() {
		switch f.Addr {
		case child:
			ci = i
		case parent:
			pi = i
		}
	}
	if assert.NotEqual(t, -1, ci, "child 0x%x was not freed", child) &&
		assert.NotEqual(t, -1, pi, "parent 0x%x was not freed", parent) {
		assert.Less(t, ci, pi, "child 0x%x freed after parent 0x%x", child, parent)
	}
}
