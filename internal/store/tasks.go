package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"planner/internal/models"
)

const taskColumns = "id, title, status, assigned_to, due_date, priority, description, created_at, updated_at"

// ListFilter narrows ListTasks results.
type ListFilter struct {
	Statuses   []string
	AssignedTo string
	Limit      int
	Offset     int
}

// TaskUpdate carries the fields to change; nil fields are left untouched.
type TaskUpdate struct {
	Title       *string
	Status      *string
	AssignedTo  *string
	Date        *string
	Priority    *string
	Description *string
	UpdatedAt   time.Time
}

// CreateTask inserts a task and fills in its store-assigned id.
func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO tasks (title, status, assigned_to, due_date, priority, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		task.Title,
		task.Status,
		nullIfEmpty(task.AssignedTo),
		nullIfEmpty(task.Date),
		task.Priority,
		nullIfEmpty(task.Description),
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	return row.Scan(&task.ID)
}

// GetTask returns a task by id, or nil when it does not exist.
func (s *Store) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	return scanTask(row)
}

// TaskExists checks whether a task exists by id.
func (s *Store) TaskExists(ctx context.Context, id int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT 1 FROM tasks WHERE id = ? LIMIT 1"), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateTask updates mutable fields on a task. It returns ErrNotFound when
// no row matches id.
func (s *Store) UpdateTask(ctx context.Context, id int64, update TaskUpdate) error {
	set := []string{}
	args := []any{}

	if update.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Status != nil {
		set = append(set, "status = ?")
		args = append(args, *update.Status)
	}
	if update.AssignedTo != nil {
		set = append(set, "assigned_to = ?")
		args = append(args, nullString(update.AssignedTo))
	}
	if update.Date != nil {
		set = append(set, "due_date = ?")
		args = append(args, nullString(update.Date))
	}
	if update.Priority != nil {
		set = append(set, "priority = ?")
		args = append(args, *update.Priority)
	}
	if update.Description != nil {
		set = append(set, "description = ?")
		args = append(args, nullString(update.Description))
	}

	set = append(set, "updated_at = ?")
	args = append(args, formatTime(update.UpdatedAt))

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(set, ", "))
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns tasks matching filter, most recently updated first.
func (s *Store) ListTasks(ctx context.Context, filter ListFilter) ([]models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks"
	where := []string{}
	args := []any{}

	if len(filter.Statuses) > 0 {
		where = append(where, fmt.Sprintf("status IN (%s)", placeholders(len(filter.Statuses))))
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*models.Task, error) {
	var task models.Task
	var assignedTo, date, description sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&task.ID,
		&task.Title,
		&task.Status,
		&assignedTo,
		&date,
		&task.Priority,
		&description,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	task.AssignedTo = assignedTo.String
	task.Date = date.String
	task.Description = description.String

	var err error
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &task, nil
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
