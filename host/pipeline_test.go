package host

import (
	"context"
	"testing"

	"github.com/quillmc/quill-abi/domain/entities"
	domainerrors "github.com/quillmc/quill-abi/domain/errors"
	"github.com/quillmc/quill-abi/internal/wasmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap/zaptest"
)

func allStagesInfo(name string) entities.PluginInfo {
	return entities.PluginInfo{
		Name:    name,
		Version: "0.1.0",
		Systems: []entities.SystemInfo{
			{Name: "clean", Stage: entities.StageCleanUp},
			{Name: "pre", Stage: entities.StagePre},
			{Name: "send", Stage: entities.StageSendPackets},
			{Name: "tick", Stage: entities.StageTick},
		},
	}
}

func loadRegistered(t *testing.T, e *Executor, name string, p wasmtest.Plugin) (*PluginInstance, wasmtest.Fixture) {
	t.Helper()
	f := wasmtest.MustBuild(p)
	inst, err := e.LoadPlugin(context.Background(), name, f.Wasm)
	require.NoError(t, err)
	_, err = inst.Setup(context.Background())
	require.NoError(t, err)
	return inst, f
}

func TestPipeline_Tick(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	e, err := NewExecutor(ctx, WithLogger(logger))
	require.NoError(t, err)
	defer e.Close(ctx)

	a, fa := loadRegistered(t, e, "a", wasmtest.Plugin{Info: allStagesInfo("a")})

	pipeline := NewPipeline(logger)
	require.NoError(t, pipeline.Add(a))
	require.Error(t, pipeline.Add(a), "duplicate names are rejected")

	require.NoError(t, pipeline.Run(ctx, 2))
	assert.Equal(t, uint64(2), pipeline.Ticks())

	n := api.DecodeU32(a.module.ExportedGlobal("ticks").Get())
	require.Equal(t, uint32(8), n)

	raw, ok := a.module.Memory().Read(wasmtest.CallLog, n*4)
	require.True(t, ok)
	var order []string
	for i := range n {
		order = append(order, fa.Systems[raw[i*4]])
	}
	assert.Equal(t, []string{"pre", "tick", "send", "clean", "pre", "tick", "send", "clean"}, order)

	require.NoError(t, pipeline.Close(ctx))
	assert.Equal(t, StateClosed, a.State())
}

func TestPipeline_DropsFaultedPlugins(t *testing.T) {
	ctx := context.Background()
	e, err := NewExecutor(ctx)
	require.NoError(t, err)
	defer e.Close(ctx)

	good, _ := loadRegistered(t, e, "good", wasmtest.Plugin{Info: allStagesInfo("good")})
	bad, _ := loadRegistered(t, e, "bad", wasmtest.Plugin{Info: allStagesInfo("bad"), Trap: []string{"tick"}})

	pipeline := NewPipeline(nil)
	require.NoError(t, pipeline.Add(bad))
	require.NoError(t, pipeline.Add(good))

	err = pipeline.Tick(ctx)
	require.ErrorIs(t, err, domainerrors.ErrInstanceFaulted)
	assert.Equal(t, StateFaulted, bad.State())
	assert.Equal(t, []*PluginInstance{good}, pipeline.Plugins())

	require.NoError(t, pipeline.Tick(ctx))
	assert.Equal(t, uint32(8), api.DecodeU32(good.module.ExportedGlobal("ticks").Get()))
}

func TestPipeline_SkipsUnregistered(t *testing.T) {
	ctx := context.Background()
	e, err := NewExecutor(ctx)
	require.NoError(t, err)
	defer e.Close(ctx)

	f := wasmtest.MustBuild(wasmtest.Plugin{Info: allStagesInfo("idle")})
	idle, err := e.LoadPlugin(ctx, "idle", f.Wasm)
	require.NoError(t, err)

	pipeline := NewPipeline(nil)
	require.NoError(t, pipeline.Add(idle))
	require.NoError(t, pipeline.Tick(ctx))
	assert.Zero(t, api.DecodeU32(idle.module.ExportedGlobal("ticks").Get()))
}

func TestPipeline_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := NewPipeline(nil)
	err := pipeline.Run(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, pipeline.Ticks())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "registered", StateRegistered.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestNewExecutor_CompilationCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for range 2 {
		e, err := NewExecutor(ctx, WithCompilationCache(dir))
		require.NoError(t, err)

		f := wasmtest.MustBuild(wasmtest.Plugin{Info: testInfo()})
		p, err := e.LoadPlugin(ctx, "cached", f.Wasm)
		require.NoError(t, err)
		_, err = p.Setup(ctx)
		require.NoError(t, err)
		require.NoError(t, p.Close(ctx))
		require.NoError(t, e.Close(ctx))
	}
}
