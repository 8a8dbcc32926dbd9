package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"planner/internal/config"
)

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(
		newConfigGetCmd(cfg),
		newConfigSetCmd(),
		newConfigPathCmd(),
		newConfigListCmd(cfg),
	)
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(global)
			if err != nil {
				return err
			}
			return config.SetKey(path, args[0], args[1])
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.planner.toml)")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(global)
			if err != nil {
				return err
			}
			return writePlain("%s\n", path)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "print the global config path")
	return cmd
}

func newConfigListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List effective config values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range config.AllowedKeys() {
				value, err := cfg.Get(key)
				if err != nil {
					return err
				}
				if err := writePlain("%s = %s\n", key, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func configPath(global bool) (string, error) {
	if global {
		return config.GlobalPath()
	}
	return config.ProjectPath()
}
