package wasmtest

import (
	"context"
	"testing"

	"github.com/quillmc/quill-abi/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
)

func TestLEB128(t *testing.T) {
	assert.Equal(t, []byte{0x00}, uleb(0))
	assert.Equal(t, []byte{0xe5, 0x8e, 0x26}, uleb(624485))
	assert.Equal(t, []byte{0x3f}, sleb(63))
	assert.Equal(t, []byte{0xc0, 0x00}, sleb(64))
	assert.Equal(t, []byte{0x7f}, sleb(-1))
	assert.Equal(t, []byte{0x80, 0x7f}, sleb(-128))
}

func TestBuild_Compiles(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	f := MustBuild(Plugin{Info: entities.PluginInfo{
		Name:    "Testing Plugin",
		Version: "1.0.0",
		Systems: []entities.SystemInfo{{Name: "test_system", Stage: entities.StageTick}},
	}})

	compiled, err := rt.CompileModule(ctx, f.Wasm)
	require.NoError(t, err)

	assert.Contains(t, compiled.ExportedFunctions(), "setup")
	assert.Contains(t, compiled.ExportedFunctions(), "free")
	assert.Contains(t, compiled.ExportedFunctions(), "test_system")
	assert.Contains(t, compiled.ExportedMemories(), "memory")
	require.Len(t, compiled.ImportedFunctions(), 1)
	mod, fn, isImport := compiled.ImportedFunctions()[0].Import()
	assert.True(t, isImport)
	assert.Equal(t, "env", mod)
	assert.Equal(t, "print", fn)

	assert.Len(t, f.Allocs, 5)
	assert.Equal(t, f.Root, f.Allocs[4].Addr)
	assert.Equal(t, []string{"test_system"}, f.Systems)
}

func TestBuild_MissingAndDuplicateSystems(t *testing.T) {
	f := MustBuild(Plugin{
		Info: entities.PluginInfo{
			Name:    "p",
			Version: "1",
			Systems: []entities.SystemInfo{{Name: "a"}, {Name: "b"}, {Name: "a"}},
		},
		Missing: []string{"b"},
	})
	assert.Equal(t, []string{"a"}, f.Systems)
}
