package server

import (
	"context"
	"log/slog"

	"planner/internal/api"
	"planner/internal/filestore"
	"planner/internal/models"
)

// ImageLister returns the images of a task, newest first.
type ImageLister interface {
	ListImages(ctx context.Context, taskID string) ([]api.ImageDescriptor, error)
}

// recordLister reads full descriptors from the metadata store.
type recordLister struct {
	recorder *MetadataRecorder
}

func (l recordLister) ListImages(ctx context.Context, taskID string) ([]api.ImageDescriptor, error) {
	records, err := l.recorder.List(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]api.ImageDescriptor, 0, len(records))
	for _, record := range records {
		size := record.SizeBytes
		uploadedAt := record.UploadedAt
		out = append(out, api.ImageDescriptor{
			Name:       record.FileName,
			URL:        firstNonEmpty(record.URLPath, models.FileURLPath(record.TaskID, record.FileName)),
			Type:       record.MimeType,
			Size:       &size,
			UploadedBy: record.UploadedBy,
			UploadedAt: &uploadedAt,
		})
	}
	return out, nil
}

// directoryLister synthesizes descriptors from the task directory.
type directoryLister struct {
	files *filestore.Store
}

func (l directoryLister) ListImages(ctx context.Context, taskID string) ([]api.ImageDescriptor, error) {
	entries, err := l.files.ListTaskFiles(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]api.ImageDescriptor, 0, len(entries))
	for _, entry := range entries {
		out = append(out, api.ImageDescriptor{
			Name: entry.Name,
			URL:  models.FileURLPath(taskID, entry.Name),
		})
	}
	return out, nil
}

// fallbackLister asks primary first and uses secondary when primary fails,
// returns nothing, or is skipped.
type fallbackLister struct {
	primary     ImageLister
	secondary   ImageLister
	skipPrimary func() bool
	logger      *slog.Logger
}

func (l fallbackLister) ListImages(ctx context.Context, taskID string) ([]api.ImageDescriptor, error) {
	if l.skipPrimary == nil || !l.skipPrimary() {
		images, err := l.primary.ListImages(ctx, taskID)
		switch {
		case err != nil:
			l.logger.Warn("list image records; falling back to filesystem", "task_id", taskID, "error", err)
		case len(images) > 0:
			return images, nil
		}
	}
	return l.secondary.ListImages(ctx, taskID)
}

// NewImageLister lists from metadata records and falls back to the
// filesystem, skipping the records entirely while the recorder is degraded.
func NewImageLister(recorder *MetadataRecorder, files *filestore.Store, logger *slog.Logger) ImageLister {
	if logger == nil {
		logger = slog.Default()
	}
	return fallbackLister{
		primary:     recordLister{recorder: recorder},
		secondary:   directoryLister{files: files},
		skipPrimary: recorder.Degraded,
		logger:      logger.With("component", "image_lister"),
	}
}
