package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"planner/internal/api"
	"planner/internal/config"
)

type sweepOptions struct {
	dryRun bool
	remote bool
}

func newSweepCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a housekeeping sweep once",
	}
	cmd.AddCommand(
		newSweepQuotaCmd(cfg),
		newSweepTrashCmd(cfg),
	)
	return cmd
}

func newSweepQuotaCmd(cfg *config.Config) *cobra.Command {
	opts := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Move the oldest uploads to trash until usage is within quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.remote {
				return withClient(cfg, func(client *api.Client) error {
					result, err := client.RunQuotaSweep(cmd.Context(), opts.dryRun, !opts.dryRun)
					if err != nil {
						return err
					}
					return writeJSON(result)
				})
			}
			return withLocalRuntime(cmd.Context(), cfg, func(rt *localRuntime) error {
				result, err := rt.sweeps.SweepQuota(cmd.Context(), opts.dryRun)
				if err != nil {
					return err
				}
				return writeJSON(result)
			})
		},
	}
	bindSweepFlags(cmd, opts)
	return cmd
}

func newSweepTrashCmd(cfg *config.Config) *cobra.Command {
	opts := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Permanently delete trash entries past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.remote {
				return withClient(cfg, func(client *api.Client) error {
					result, err := client.RunTrashPurge(cmd.Context(), opts.dryRun, !opts.dryRun)
					if err != nil {
						return err
					}
					return writeJSON(result)
				})
			}
			return withLocalRuntime(cmd.Context(), cfg, func(rt *localRuntime) error {
				result, err := rt.sweeps.PurgeTrash(cmd.Context(), opts.dryRun)
				if err != nil {
					return err
				}
				return writeJSON(result)
			})
		},
	}
	bindSweepFlags(cmd, opts)
	return cmd
}

func bindSweepFlags(cmd *cobra.Command, opts *sweepOptions) {
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report what would change without touching files")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "ask the running server to sweep instead of opening the store locally")
}

func withLocalRuntime(ctx context.Context, cfg *config.Config, fn func(*localRuntime) error) error {
	rt, err := openLocalRuntime(ctx, cfg, slog.Default().With("component", "cli"))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
