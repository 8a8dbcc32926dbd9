package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"planner/internal/config"
	"planner/internal/housekeeping"
	"planner/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the planner API server and background sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	logger := slog.Default().With("component", "server")

	addr, err := server.ListenAddr(cfg.APIURL)
	if err != nil {
		return err
	}

	rt, err := openLocalRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := server.New(addr, rt.store, rt.recorder, rt.files, rt.sweeps, server.Options{
		MaxFileBytes:      int64(cfg.Uploads.MaxFileBytes),
		MaxRequestBytes:   int64(cfg.Uploads.MaxRequestBytes),
		AllowedMediaTypes: cfg.Uploads.AllowedMediaTypes,
		AdminToken:        cfg.AdminToken,
	}, logger)

	interval := cfg.Housekeeping.CheckInterval.Duration
	sweeps := housekeeping.NewScheduler(logger, rt.sweeps.Jobs(interval, interval)...).Start(context.WithoutCancel(ctx))
	logger.Info("housekeeping scheduled", "interval", interval, "trash_retention", cfg.Housekeeping.TrashRetention())

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	wait := gfshutdown.GracefulShutdown(context.WithoutCancel(ctx), shutdownTimeout, map[string]gfshutdown.Operation{
		"http": srv.Shutdown,
		"housekeeping": func(context.Context) error {
			return sweeps.Stop()
		},
	})

	var exitCode int
	select {
	case err := <-serveErr:
		if err != nil {
			_ = sweeps.Stop()
			_ = rt.Close()
			return err
		}
		exitCode = <-wait
	case exitCode = <-wait:
	}

	// The store outlives every operation above that may still write to it.
	closeErr := rt.Close()
	if exitCode != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", exitCode)
	}
	logger.Info("shutdown complete")
	return closeErr
}
