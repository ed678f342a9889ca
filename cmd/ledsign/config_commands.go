package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ledsign/internal/config"
)

// configOnly marks commands that read the config file themselves, so a
// broken file can still be inspected or replaced.
var configOnly = map[string]string{"skipConfigLoad": "true"}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create, check and print the configuration file",
	}
	configCmd.AddCommand(
		newConfigInitCommand(),
		newConfigValidateCommand(ctx),
		newConfigShowCommand(ctx),
	)
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var target string
	var overwrite bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write an annotated sample configuration",
		Args:        cobra.NoArgs,
		Annotations: configOnly,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(strings.TrimSpace(target))
			if err == nil && path == "" {
				path, err = config.DefaultConfigPath()
			}
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			if err := config.WriteSample(path, overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "path", "p", "", "Destination (defaults to the user config path)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func (c *commandContext) loadConfigSource() (*config.Config, config.Source, error) {
	var path string
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, src, err := config.Load(path)
	if err != nil {
		return nil, config.Source{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, src, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Check the configuration and create the directories it names",
		Args:        cobra.NoArgs,
		Annotations: configOnly,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, src, err := ctx.loadConfigSource()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			device := cfg.Device.Path
			if device == "" {
				device = "first sign found"
			}
			fields := [][2]string{
				{"Config", src.Path},
				{"File present", yesNo(src.Exists)},
				{"Device", device},
				{"Lock dir", cfg.Device.LockDir},
				{"Geometry cache", cacheSummary(cfg)},
			}
			out := cmd.OutOrStdout()
			renderFields(out, fields)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration as TOML",
		Args:        cobra.NoArgs,
		Annotations: configOnly,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, src, err := ctx.loadConfigSource()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if src.Exists {
				fmt.Fprintf(out, "# loaded from %s\n", src.Path)
			} else {
				fmt.Fprintf(out, "# defaults (%s not found)\n", src.Path)
			}
			return cfg.Encode(out)
		},
	}
}

func cacheSummary(cfg *config.Config) string {
	if !cfg.Cache.Enabled {
		return "disabled"
	}
	return cfg.Cache.Path
}
