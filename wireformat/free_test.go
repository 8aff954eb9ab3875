package wireformat

import (
	"context"
	"errors"
	"testing"

	"github.com/quillmc/quill-abi/abi"
	"github.com/quillmc/quill-abi/domain/entities"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
	"github.com/quillmc/quill-abi/testing/plugintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeGuest(t *testing.T, g *plugintest.FakeGuest, info entities.PluginInfo) GuestOwned[Box[Registration[abi.Offset], abi.Offset]] {
	t.Helper()
	box, err := EncodeRegistration[abi.Offset](context.Background(), g, info)
	require.NoError(t, err)
	return AdoptGuestRegistration(box.Addr)
}

func TestFree_Registration(t *testing.T) {
	g := plugintest.NewFakeGuest(1)
	reg := encodeGuest(t, g, testInfo())

	// Allocation order: name, version, systems[0].name, systems, root.
	allocs := g.Allocs()
	require.Len(t, allocs, 5)

	require.NoError(t, reg.Free(context.Background(), g))

	frees := g.Frees()
	require.Len(t, frees, 5, "3 strings + 1 slice buffer + 1 root")
	assert.Equal(t, allocs, frees, "children are freed in field order before their parents")

	assert.Equal(t, abi.Layout{Size: 14, Align: 1}, frees[0].Layout)
	assert.Equal(t, abi.Layout{Size: 5, Align: 1}, frees[1].Layout)
	assert.Equal(t, abi.Layout{Size: 11, Align: 1}, frees[2].Layout)
	assert.Equal(t, abi.Layout{Size: 12, Align: 4}, frees[3].Layout)
	assert.Equal(t, abi.Layout{Size: 24, Align: 4}, frees[4].Layout)

	plugintest.AssertAllFreed(t, g)
	plugintest.AssertFreedBefore(t, g, frees[2].Addr, frees[3].Addr)
	plugintest.AssertFreedBefore(t, g, frees[3].Addr, frees[4].Addr)
}

func TestFree_EmptySystems(t *testing.T) {
	g := plugintest.NewFakeGuest(1)
	info := testInfo()
	info.Systems = nil
	reg := encodeGuest(t, g, info)

	require.NoError(t, reg.Free(context.Background(), g))

	frees := g.Frees()
	require.Len(t, frees, 4, "2 strings + 1 empty slice buffer + 1 root")
	assert.Equal(t, abi.Layout{Size: 0, Align: 4}, frees[2].Layout, "empty buffer is freed with size 0")
	plugintest.AssertAllFreed(t, g)
}

func TestFree_ManySystems(t *testing.T) {
	g := plugintest.NewFakeGuest(1)
	info := testInfo()
	info.Systems = []entities.SystemInfo{
		{Name: "pre", Stage: entities.StagePre},
		{Name: "tick", Stage: entities.StageTick},
		{Name: "send", Stage: entities.StageSendPackets},
		{Name: "clean", Stage: entities.StageCleanUp},
	}
	reg := encodeGuest(t, g, info)

	require.NoError(t, reg.Free(context.Background(), g))

	assert.Len(t, g.Frees(), 2+4+1+1)
	assert.Equal(t, g.Allocs(), g.Frees())
	plugintest.AssertAllFreed(t, g)
}

func TestFree_StopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		name     string
		failAt   int
		wantPath string
	}{
		{name: "name", failAt: 1, wantPath: "name"},
		{name: "version", failAt: 2, wantPath: "version"},
		{name: "system name", failAt: 3, wantPath: "systems[0].name"},
		{name: "systems buffer", failAt: 4, wantPath: "systems"},
		{name: "root", failAt: 5, wantPath: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := plugintest.NewFakeGuest(1)
			reg := encodeGuest(t, g, testInfo())
			trap := errors.New("wasm error: unreachable")
			g.FailFreeAt(tt.failAt, trap)

			err := reg.Free(context.Background(), g)

			var df *domainerrors.DeallocationFailedError
			require.ErrorAs(t, err, &df)
			assert.Equal(t, tt.wantPath, df.Path)
			assert.ErrorIs(t, err, trap)
			assert.Len(t, g.Frees(), tt.failAt, "no further frees after a failure")
			assert.True(t, domainerrors.Fatal(err))
		})
	}
}

func TestFree_LayoutMismatch(t *testing.T) {
	g := plugintest.NewFakeGuest(1)

	s, err := NewString[abi.Offset](g, "hello")
	require.NoError(t, err)
	s.Len = 4

	err = AdoptGuest(s).Free(context.Background(), g)

	var lm *domainerrors.LayoutMismatchError
	require.ErrorAs(t, err, &lm)
	assert.Equal(t, uint32(5), lm.LiveSize)
	assert.Equal(t, uint32(4), lm.Size)
}

func TestFree_SliceOfStrings(t *testing.T) {
	g := plugintest.NewFakeGuest(1)
	ctx := context.Background()

	var elems []String[abi.Offset]
	for _, s := range []string{"a", "bb", ""} {
		ws, err := NewString[abi.Offset](g, s)
		require.NoError(t, err)
		elems = append(elems, ws)
	}
	slice, err := NewSlice[String[abi.Offset], abi.Offset](g, elems)
	require.NoError(t, err)

	require.NoError(t, AdoptGuest(slice).Free(ctx, g))

	frees := g.Frees()
	require.Len(t, frees, 4)
	assert.Equal(t, slice.Elements, frees[3].Addr)
	assert.Equal(t, abi.Layout{Size: 24, Align: 4}, frees[3].Layout)
	plugintest.AssertAllFreed(t, g)
}

func TestFree_HostRegistration(t *testing.T) {
	h := abi.NewHeap()
	ctx := context.Background()

	reg, err := NewHostRegistration(ctx, h, testInfo())
	require.NoError(t, err)

	count, _ := h.Stats()
	assert.Equal(t, 5, count)

	require.NoError(t, reg.Free(ctx, h))

	count, total := h.Stats()
	assert.Zero(t, count)
	assert.Zero(t, total)
}
