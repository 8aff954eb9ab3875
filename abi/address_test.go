package abi

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWidth(t *testing.T) {
	assert.Equal(t, uint32(4), Width[Offset]())
	assert.Equal(t, uint32(unsafe.Sizeof(uintptr(0))), Width[uintptr]())
	assert.Equal(t, Layout{Size: 4, Align: 4}, LayoutOf[Offset]())
}

func TestLayout_Valid(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		want   bool
	}{
		{name: "byte", layout: Layout{Size: 5, Align: 1}, want: true},
		{name: "word", layout: Layout{Size: 8, Align: 4}, want: true},
		{name: "zero size", layout: Layout{Size: 0, Align: 1}, want: true},
		{name: "zero align", layout: Layout{Size: 4, Align: 0}, want: false},
		{name: "odd align", layout: Layout{Size: 6, Align: 3}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layout.Valid())
		})
	}
}

func TestLayout_Array(t *testing.T) {
	l, err := Layout{Size: 12, Align: 4}.Array(3)
	require.NoError(t, err)
	assert.Equal(t, Layout{Size: 36, Align: 4}, l)

	// Stride is rounded up to the alignment.
	l, err = Layout{Size: 5, Align: 4}.Array(2)
	require.NoError(t, err)
	assert.Equal(t, Layout{Size: 16, Align: 4}, l)

	l, err = Layout{Size: 12, Align: 4}.Array(0)
	require.NoError(t, err)
	assert.Equal(t, Layout{Size: 0, Align: 4}, l)

	_, err = Layout{Size: math.MaxUint32 / 2, Align: 1}.Array(3)
	assert.Error(t, err)
}

func TestAlignTo(t *testing.T) {
	assert.Equal(t, uint32(0), AlignTo(0, 4))
	assert.Equal(t, uint32(4), AlignTo(1, 4))
	assert.Equal(t, uint32(8), AlignTo(8, 8))
	assert.Equal(t, uint32(7), AlignTo(7, 0))
}

func TestSafeArithmetic(t *testing.T) {
	v, ok := SafeMulU32(1<<16, 1<<15)
	assert.True(t, ok)
	assert.Equal(t, uint32(1<<31), v)

	_, ok = SafeMulU32(1<<16, 1<<16)
	assert.False(t, ok)

	v, ok = SafeAddU32(math.MaxUint32-1, 1)
	assert.True(t, ok)
	assert.Equal(t, uint32(math.MaxUint32), v)

	_, ok = SafeAddU32(math.MaxUint32, 1)
	assert.False(t, ok)
}
