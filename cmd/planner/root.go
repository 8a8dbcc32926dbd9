package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"planner/internal/config"
	"planner/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		outputName string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:           "planner",
		Short:         "Planner stores task photos and gates task completion on them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel, firstNonEmpty(logFormat, cfg.LogFormat))
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if outputName != "" {
				formatter, err := format.ForName(outputName)
				if err != nil {
					return err
				}
				outputFormatter = formatter
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVarP(&outputName, "output", "o", "", "structured output format: json|json-pretty|yaml")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text|json|logfmt")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
		newSweepCmd(cfg),
		newImportLegacyCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
		newCreateCmd(cfg, &jsonOutput),
		newShowCmd(cfg, &jsonOutput),
		newListCmd(cfg, &jsonOutput),
		newDoneCmd(cfg, &jsonOutput),
		newUploadCmd(cfg, &jsonOutput),
		newImagesCmd(cfg, &jsonOutput),
		newStatusCmd(cfg, &jsonOutput),
	)

	return cmd
}
