package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quillmc/quill-abi/host"
)

func newInspectCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "inspect plugin.wasm",
		Short: "Print a plugin's registration",
		Long: `Load a plugin, call its setup export, print the decoded registration
and free it again through the plugin's free export.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if output != "yaml" && output != "json" {
				return fmt.Errorf("unknown output format %q: use yaml or json", output)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := loadConfig(cmd, "")
			if err != nil {
				return err
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

			p := pluginFromPath(args[0])
			wasm, err := readPlugin(p)
			if err != nil {
				return err
			}
			inst, err := exec.LoadPlugin(ctx, p.Name, wasm)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, inst.Close(ctx))
			}()

			info, err := inst.Setup(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(info); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: yaml or json")
	return cmd
}
