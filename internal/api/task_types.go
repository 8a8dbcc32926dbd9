package api

import "planner/internal/models"

// TaskCreateRequest defines the payload for creating a task.
type TaskCreateRequest struct {
	Title       string  `json:"title"`
	Status      *string `json:"status,omitempty"`
	AssignedTo  *string `json:"assignedTo,omitempty"`
	Date        *string `json:"date,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TaskUpdateRequest defines the payload for a partial task update.
type TaskUpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Status      *string `json:"status,omitempty"`
	AssignedTo  *string `json:"assignedTo,omitempty"`
	Date        *string `json:"date,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TaskResponse wraps a task for API responses.
type TaskResponse struct {
	models.Task
}
