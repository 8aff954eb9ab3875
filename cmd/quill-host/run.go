package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quillmc/quill-abi/config"
	"github.com/quillmc/quill-abi/host"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		ticks      int
	)
	cmd := &cobra.Command{
		Use:   "run [plugin.wasm...]",
		Short: "Load plugins and run pipeline ticks",
		Long: `Load every plugin named in the config file and on the command line,
register them, run the requested number of ticks (Pre, Tick, SendPackets,
CleanUp) and unregister them again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			for _, path := range args {
				cfg.Plugins = append(cfg.Plugins, pluginFromPath(path))
			}
			if cmd.Flags().Changed("ticks") {
				cfg.Ticks = ticks
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if len(cfg.Plugins) == 0 {
				return errors.New("no plugins to run: pass plugin files or --config")
			}
			return runPipeline(cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or TOML config file")
	cmd.Flags().IntVarP(&ticks, "ticks", "n", config.DefaultTicks, "Number of ticks to run (overrides config)")
	return cmd
}

func runPipeline(cmd *cobra.Command, cfg config.Config) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	exec, err := host.NewExecutor(ctx, executorOptions(cmd, cfg, logger)...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, exec.Close(ctx))
	}()

	pipeline := host.NewPipeline(logger)
	defer func() {
		err = errors.Join(err, pipeline.Close(ctx))
	}()

	for _, p := range cfg.Plugins {
		wasm, err := readPlugin(p)
		if err != nil {
			return err
		}
		inst, err := exec.LoadPlugin(ctx, p.Name, wasm, host.WithPluginExports(p.SetupExport, p.FreeExport))
		if err != nil {
			return err
		}
		if err := pipeline.Add(inst); err != nil {
			_ = inst.Close(ctx)
			return err
		}
		info, err := inst.Setup(ctx)
		if err != nil {
			return err
		}
		logger.Info("plugin registered",
			zap.String("plugin", p.Name),
			zap.String("registered_name", info.Name),
			zap.String("version", info.Version),
			zap.Int("systems", len(info.Systems)))
	}

	runErr := pipeline.Run(ctx, cfg.Ticks)
	fmt.Fprintf(cmd.OutOrStdout(), "ran %d ticks, %d of %d plugins healthy\n",
		pipeline.Ticks(), len(pipeline.Plugins()), len(cfg.Plugins))
	return runErr
}
