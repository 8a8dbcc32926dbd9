package main

import (
	"context"
	"fmt"
	"log/slog"

	"planner/internal/config"
	"planner/internal/filestore"
	"planner/internal/housekeeping"
	"planner/internal/server"
	"planner/internal/store"
)

// localRuntime is the upload pipeline assembled in-process: metadata store,
// storage root, recorder, sweeps and upload service.
type localRuntime struct {
	store    *store.Store
	files    *filestore.Store
	recorder *server.MetadataRecorder
	sweeps   *housekeeping.Service
	uploads  *server.UploadService
}

func openLocalRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*localRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	driver, err := store.ParseDriver(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	if driver == store.DriverSQLite && cfg.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}

	logger.Info("opening metadata store", "driver", driver, "path", cfg.DBPath)
	st, err := store.OpenWithOptions(ctx, store.Options{Driver: driver, Path: cfg.DBPath, DSN: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	files, err := filestore.NewOS(cfg.Uploads.Dir)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open upload root: %w", err)
	}
	if err := files.ProbeWritable(ctx); err != nil {
		logger.Warn("upload root is not writable", "root", files.Root(), "error", err)
	}

	recorder := server.NewMetadataRecorder(st, logger)
	if available, err := recorder.Probe(ctx); err != nil {
		logger.Warn("probe file metadata", "error", err)
	} else if !available {
		logger.Warn("file metadata table missing; uploads will not be recorded")
	}

	sweeps := housekeeping.NewService(
		housekeeping.NewQuotaEnforcer(files, int64(cfg.Housekeeping.QuotaBytes), recorder, logger),
		housekeeping.NewTrashPurger(files, cfg.Housekeeping.TrashRetention(), logger),
	)
	uploads := server.NewUploadService(files, recorder, int64(cfg.Uploads.MaxFileBytes), cfg.Uploads.AllowedMediaTypes, logger)

	return &localRuntime{store: st, files: files, recorder: recorder, sweeps: sweeps, uploads: uploads}, nil
}

func (r *localRuntime) Close() error {
	if r == nil {
		return nil
	}
	return r.store.Close()
}
