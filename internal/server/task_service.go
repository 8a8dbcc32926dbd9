package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"planner/internal/api"
	"planner/internal/models"
	"planner/internal/store"
)

// TaskService centralizes task validation and defaults.
type TaskService struct {
	store store.TaskStore
	gate  *CompletionGate
	now   func() time.Time
}

// NewTaskService constructs a TaskService.
func NewTaskService(store store.TaskStore, gate *CompletionGate) *TaskService {
	return &TaskService{store: store, gate: gate, now: time.Now}
}

// Create creates a task from a request.
func (s *TaskService) Create(ctx context.Context, req api.TaskCreateRequest) (api.TaskResponse, error) {
	var resp api.TaskResponse

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return resp, badRequestCode(fmt.Errorf("title is required"), ErrCodeMissingRequired)
	}

	status := string(models.DefaultStatus)
	if req.Status != nil {
		var err error
		if status, err = normalizeStatus(*req.Status); err != nil {
			return resp, err
		}
	}
	// A new task has no photos yet.
	if models.TaskStatus(status).IsDone() {
		return resp, preconditionFailed(errors.New(completionRequiresPhoto))
	}

	priority := string(models.DefaultPriority)
	if req.Priority != nil {
		var err error
		if priority, err = normalizePriority(*req.Priority); err != nil {
			return resp, err
		}
	}

	date, err := normalizeDate(valueOrEmpty(req.Date))
	if err != nil {
		return resp, err
	}

	now := s.now().UTC()
	task := &models.Task{
		Title:       title,
		Status:      status,
		AssignedTo:  valueOrEmpty(req.AssignedTo),
		Date:        date,
		Priority:    priority,
		Description: valueOrEmpty(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return resp, storeFailure(err)
	}
	return api.TaskResponse{Task: *task}, nil
}

// Update applies a partial update. Moving a task to the done status passes
// through the completion gate first; a failed gate leaves the task as is.
func (s *TaskService) Update(ctx context.Context, id int64, req api.TaskUpdateRequest) (api.TaskResponse, error) {
	var resp api.TaskResponse

	update := store.TaskUpdate{UpdatedAt: s.now().UTC()}
	changed := false

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return resp, badRequestCode(fmt.Errorf("title cannot be empty"), ErrCodeMissingRequired)
		}
		update.Title = &title
		changed = true
	}
	if req.Status != nil {
		status, err := normalizeStatus(*req.Status)
		if err != nil {
			return resp, err
		}
		update.Status = &status
		changed = true
	}
	if req.Priority != nil {
		priority, err := normalizePriority(*req.Priority)
		if err != nil {
			return resp, err
		}
		update.Priority = &priority
		changed = true
	}
	if req.Date != nil {
		date, err := normalizeDate(*req.Date)
		if err != nil {
			return resp, err
		}
		update.Date = &date
		changed = true
	}
	if req.AssignedTo != nil {
		assignedTo := strings.TrimSpace(*req.AssignedTo)
		update.AssignedTo = &assignedTo
		changed = true
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		update.Description = &description
		changed = true
	}
	if !changed {
		return resp, badRequestCode(fmt.Errorf("no fields to update"), ErrCodeMissingRequired)
	}

	exists, err := s.store.TaskExists(ctx, id)
	if err != nil {
		return resp, storeFailure(err)
	}
	if !exists {
		return resp, notFound(fmt.Errorf("task not found"))
	}

	if update.Status != nil && models.TaskStatus(*update.Status).IsDone() {
		if err := s.gate.Check(ctx, strconv.FormatInt(id, 10)); err != nil {
			return resp, err
		}
	}

	if err := s.store.UpdateTask(ctx, id, update); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resp, notFound(fmt.Errorf("task not found"))
		}
		return resp, storeFailure(err)
	}
	return s.Get(ctx, id)
}

// Get returns a task by id.
func (s *TaskService) Get(ctx context.Context, id int64) (api.TaskResponse, error) {
	var resp api.TaskResponse
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return resp, storeFailure(err)
	}
	if task == nil {
		return resp, notFound(fmt.Errorf("task not found"))
	}
	return api.TaskResponse{Task: *task}, nil
}

// List returns tasks matching filter.
func (s *TaskService) List(ctx context.Context, filter store.ListFilter) ([]api.TaskResponse, error) {
	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, storeFailure(err)
	}
	out := make([]api.TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, api.TaskResponse{Task: task})
	}
	return out, nil
}
