package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"planner/internal/models"
)

const fileColumns = "id, task_id, file_name, url_path, mime_type, size_bytes, uploaded_by, uploaded_at"

// RecordFile upserts the metadata row of one task file keyed by
// (task_id, file_name). On conflict the existing id is kept and written
// back into file.ID.
func (s *Store) RecordFile(ctx context.Context, file *models.StoredFile) error {
	if file == nil {
		return fmt.Errorf("file is required")
	}
	if file.TaskID == "" || file.FileName == "" {
		return fmt.Errorf("task id and file name are required")
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	if file.URLPath == "" {
		file.URLPath = models.FileURLPath(file.TaskID, file.FileName)
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO task_files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id, file_name) DO UPDATE SET
			url_path = excluded.url_path,
			mime_type = excluded.mime_type,
			size_bytes = excluded.size_bytes,
			uploaded_by = excluded.uploaded_by,
			uploaded_at = excluded.uploaded_at
		RETURNING id
	`),
		file.ID,
		file.TaskID,
		file.FileName,
		file.URLPath,
		file.MimeType,
		file.SizeBytes,
		nullString(file.UploadedBy),
		formatTime(file.UploadedAt),
	)
	return row.Scan(&file.ID)
}

// ListFilesByTask lists file records for a task, newest first.
func (s *Store) ListFilesByTask(ctx context.Context, taskID string) ([]models.StoredFile, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+fileColumns+` FROM task_files
		WHERE task_id = ?
		ORDER BY uploaded_at DESC, file_name DESC
	`), taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []models.StoredFile{}
	for rows.Next() {
		file, err := scanStoredFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// ForgetFile deletes the record of one task file. Missing rows are ignored.
func (s *Store) ForgetFile(ctx context.Context, taskID, fileName string) error {
	_, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM task_files WHERE task_id = ? AND file_name = ?"), taskID, fileName)
	return err
}

// FileMetadataAvailable reports whether the task_files table exists.
func (s *Store) FileMetadataAvailable(ctx context.Context) (bool, error) {
	var query string
	switch s.driver {
	case DriverPostgres:
		query = "SELECT to_regclass('task_files') IS NOT NULL"
	default:
		query = "SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = 'task_files'"
	}
	var ok bool
	if err := s.db.QueryRowContext(ctx, query).Scan(&ok); err != nil {
		return false, fmt.Errorf("probe task_files: %w", err)
	}
	return ok, nil
}

func scanStoredFile(scanner interface {
	Scan(dest ...any) error
}) (*models.StoredFile, error) {
	var file models.StoredFile
	var uploadedBy sql.NullString
	var uploadedAt string

	if err := scanner.Scan(
		&file.ID,
		&file.TaskID,
		&file.FileName,
		&file.URLPath,
		&file.MimeType,
		&file.SizeBytes,
		&uploadedBy,
		&uploadedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if uploadedBy.Valid && uploadedBy.String != "" {
		value := uploadedBy.String
		file.UploadedBy = &value
	}
	ts, err := parseTime(uploadedAt)
	if err != nil {
		return nil, err
	}
	file.UploadedAt = ts
	return &file, nil
}
