package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/quillmc/quill-abi/domain/entities"
	"github.com/quillmc/quill-abi/internal/wasmtest"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func testInfo() entities.PluginInfo {
	return entities.PluginInfo{
		Name:    "Testing Plugin",
		Version: "1.0.0",
		Systems: []entities.SystemInfo{
			{Name: "test_system", Stage: entities.StageTick},
			{Name: "flush", Stage: entities.StageCleanUp},
		},
	}
}

func writePlugin(t *testing.T, p wasmtest.Plugin, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, wasmtest.MustBuild(p).Wasm, 0o600))
	return path
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"quill-host", "run", "inspect", "schema", "--log-level"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "run", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"--config", "--ticks", "SendPackets"} {
		assert.Contains(t, output, phrase)
	}
}

func TestSchema(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &schema))
	assert.Contains(t, schema, "properties")
}

func TestRun_PluginArgs(t *testing.T) {
	path := writePlugin(t, wasmtest.Plugin{Info: testInfo()}, "testing.wasm")

	output, err := executeCommand(newRootCmd(), "run", "--log-level", "error", "--ticks", "3", path)
	require.NoError(t, err)
	assert.Contains(t, output, "ran 3 ticks, 1 of 1 plugins healthy")
}

func TestRun_Config(t *testing.T) {
	plugin := writePlugin(t, wasmtest.Plugin{Info: testInfo(), SetupExport: "init_plugin"}, "renamed.wasm")
	cfgPath := filepath.Join(t.TempDir(), "quill.yaml")
	cfg := "log_level: error\nticks: 2\nplugins:\n  - name: renamed\n    path: " + plugin + "\n    setup_export: init_plugin\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	output, err := executeCommand(newRootCmd(), "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, output, "ran 2 ticks, 1 of 1 plugins healthy")
}

func TestRun_FaultedPluginReported(t *testing.T) {
	path := writePlugin(t, wasmtest.Plugin{Info: testInfo(), Trap: []string{"test_system"}}, "trapping.wasm")

	output, err := executeCommand(newRootCmd(), "run", "--log-level", "error", "--ticks", "2", path)
	require.Error(t, err)
	assert.Contains(t, output, "ran 2 ticks, 0 of 1 plugins healthy")
}

func TestRun_NoPlugins(t *testing.T) {
	_, err := executeCommand(newRootCmd(), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no plugins")
}

func TestRun_DuplicatePluginNames(t *testing.T) {
	path := writePlugin(t, wasmtest.Plugin{Info: testInfo()}, "testing.wasm")

	_, err := executeCommand(newRootCmd(), "run", path, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugins")
}

func TestInspect(t *testing.T) {
	path := writePlugin(t, wasmtest.Plugin{Info: testInfo()}, "testing.wasm")

	t.Run("yaml", func(t *testing.T) {
		output, err := executeCommand(newRootCmd(), "inspect", "--log-level", "error", path)
		require.NoError(t, err)

		var info entities.PluginInfo
		require.NoError(t, yaml.Unmarshal([]byte(output), &info))
		assert.Equal(t, testInfo(), info)
	})

	t.Run("json", func(t *testing.T) {
		output, err := executeCommand(newRootCmd(), "inspect", "--log-level", "error", "-o", "json", path)
		require.NoError(t, err)

		var info entities.PluginInfo
		require.NoError(t, json.Unmarshal([]byte(output), &info))
		assert.Equal(t, testInfo(), info)
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := executeCommand(newRootCmd(), "inspect", "-o", "xml", path)
		require.Error(t, err)
	})
}
