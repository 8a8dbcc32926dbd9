package store

import (
	"context"

	"planner/internal/models"
)

// TaskStore abstracts task storage backends.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	TaskExists(ctx context.Context, id int64) (bool, error)
	UpdateTask(ctx context.Context, id int64, update TaskUpdate) error
	ListTasks(ctx context.Context, filter ListFilter) ([]models.Task, error)
}

// FileMetadataStore is the persistence surface for uploaded file records.
//
// It is separate from TaskStore so uploads keep working against tasks the
// store does not know about.
type FileMetadataStore interface {
	RecordFile(ctx context.Context, file *models.StoredFile) error
	ListFilesByTask(ctx context.Context, taskID string) ([]models.StoredFile, error)
	ForgetFile(ctx context.Context, taskID, fileName string) error
	FileMetadataAvailable(ctx context.Context) (bool, error)
}

var (
	_ TaskStore         = (*Store)(nil)
	_ FileMetadataStore = (*Store)(nil)
)
