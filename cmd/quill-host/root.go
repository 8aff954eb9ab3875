package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quillmc/quill-abi/config"
	"github.com/quillmc/quill-abi/host"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quill-host",
		Short: "Host for quill WebAssembly plugins",
		Long: `quill-host loads WebAssembly plugins that implement the quill ABI,
calls their setup export, runs their systems stage by stage and frees
every registration through the plugin's free export.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	root.AddCommand(newRunCmd(), newInspectCmd(), newSchemaCmd())
	return root
}

// newLogger builds a console logger for debug and a JSON logger otherwise.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// loadConfig reads the config file if one is given and applies the
// persistent flags on top of it.
func loadConfig(cmd *cobra.Command, path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

// pluginFromPath names a plugin after its file.
func pluginFromPath(path string) config.Plugin {
	base := filepath.Base(path)
	return config.Plugin{
		Name:        strings.TrimSuffix(base, filepath.Ext(base)),
		Path:        path,
		SetupExport: config.DefaultSetupExport,
		FreeExport:  config.DefaultFreeExport,
	}
}

func executorOptions(cmd *cobra.Command, cfg config.Config, logger *zap.Logger) []host.Option {
	opts := []host.Option{
		host.WithLogger(logger),
		host.WithStdout(cmd.OutOrStdout()),
		host.WithStderr(cmd.ErrOrStderr()),
	}
	if cfg.MemoryLimitPages > 0 {
		opts = append(opts, host.WithMemoryLimit(cfg.MemoryLimitPages))
	}
	if cfg.CacheDir != "" {
		opts = append(opts, host.WithCompilationCache(cfg.CacheDir))
	}
	return opts
}

func readPlugin(p config.Plugin) ([]byte, error) {
	wasm, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read plugin %s: %w", p.Name, err)
	}
	return wasm, nil
}
