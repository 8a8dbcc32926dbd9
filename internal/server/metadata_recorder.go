package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"planner/internal/models"
	"planner/internal/store"
)

var (
	// ErrMetadataUnavailable means the file metadata table does not exist.
	// Uploads keep their files and listings come from the filesystem.
	ErrMetadataUnavailable = errors.New("file metadata unavailable")
	// ErrMetadataWrite is any other failure to persist a file record.
	ErrMetadataWrite = errors.New("file metadata write failed")
)

// MetadataRecorder persists upload records and tracks whether the metadata
// store can accept them.
type MetadataRecorder struct {
	store    store.FileMetadataStore
	logger   *slog.Logger
	degraded atomic.Bool
}

// NewMetadataRecorder constructs a MetadataRecorder. Call Probe before
// serving traffic.
func NewMetadataRecorder(st store.FileMetadataStore, logger *slog.Logger) *MetadataRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataRecorder{store: st, logger: logger.With("component", "metadata_recorder")}
}

// Probe checks whether the metadata table exists and updates degraded mode.
func (m *MetadataRecorder) Probe(ctx context.Context) (bool, error) {
	if m == nil || m.store == nil {
		return false, nil
	}
	available, err := m.store.FileMetadataAvailable(ctx)
	if err != nil {
		return false, fmt.Errorf("probe file metadata: %w", err)
	}
	m.setDegraded(!available)
	return available, nil
}

// Degraded reports whether records are currently skipped.
func (m *MetadataRecorder) Degraded() bool {
	if m == nil || m.store == nil {
		return true
	}
	return m.degraded.Load()
}

func (m *MetadataRecorder) setDegraded(degraded bool) {
	if m.degraded.Swap(degraded) == degraded {
		return
	}
	if degraded {
		m.logger.Warn("file metadata table missing; listing from filesystem")
		return
	}
	m.logger.Info("file metadata table available")
}

// Record upserts a file record. It returns ErrMetadataUnavailable when the
// table is missing and ErrMetadataWrite for any other failure. The
// classification comes from a fresh probe, never from the error text.
func (m *MetadataRecorder) Record(ctx context.Context, file *models.StoredFile) error {
	if m == nil || m.store == nil {
		return ErrMetadataUnavailable
	}
	if m.Degraded() {
		available, err := m.Probe(context.WithoutCancel(ctx))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMetadataWrite, err)
		}
		if !available {
			return ErrMetadataUnavailable
		}
	}

	err := m.store.RecordFile(ctx, file)
	if err == nil {
		return nil
	}

	available, probeErr := m.Probe(context.WithoutCancel(ctx))
	if probeErr == nil && !available {
		return fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrMetadataWrite, err)
}

// List returns the records of a task, newest first.
func (m *MetadataRecorder) List(ctx context.Context, taskID string) ([]models.StoredFile, error) {
	if m.Degraded() {
		return nil, ErrMetadataUnavailable
	}
	return m.store.ListFilesByTask(ctx, taskID)
}

// Forget drops the record of a file that left its task directory. It is a
// no-op in degraded mode.
func (m *MetadataRecorder) Forget(ctx context.Context, taskID, fileName string) error {
	if m.Degraded() {
		return nil
	}
	return m.store.ForgetFile(ctx, taskID, fileName)
}
