package models

import (
	"fmt"
	"strings"
)

// TaskStatus defines allowed lifecycle states for tasks.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "No Iniciado"
	StatusInProgress TaskStatus = "En Proceso"
	StatusDone       TaskStatus = "Finalizado"
)

// TaskPriority defines allowed task priorities.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "Baja"
	PriorityMedium TaskPriority = "Media"
	PriorityHigh   TaskPriority = "Alta"
)

const (
	DefaultStatus   = StatusNotStarted
	DefaultPriority = PriorityMedium
)

var taskStatusAliases = map[string]TaskStatus{
	"no iniciado": StatusNotStarted,
	"not_started": StatusNotStarted,
	"en proceso":  StatusInProgress,
	"in_progress": StatusInProgress,
	"finalizado":  StatusDone,
	"done":        StatusDone,
}

var taskPriorityAliases = map[string]TaskPriority{
	"baja":   PriorityLow,
	"low":    PriorityLow,
	"media":  PriorityMedium,
	"medium": PriorityMedium,
	"alta":   PriorityHigh,
	"high":   PriorityHigh,
}

// ParseTaskStatus maps raw input onto a canonical status. Matching is
// case-insensitive and accepts the English aliases used by the CLI.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", fmt.Errorf("status is required")
	}
	status, ok := taskStatusAliases[value]
	if !ok {
		return "", fmt.Errorf("invalid status: %s", strings.TrimSpace(raw))
	}
	return status, nil
}

func ParseTaskPriority(raw string) (TaskPriority, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", fmt.Errorf("priority is required")
	}
	priority, ok := taskPriorityAliases[value]
	if !ok {
		return "", fmt.Errorf("invalid priority: %s", strings.TrimSpace(raw))
	}
	return priority, nil
}

// IsDone reports whether status is the terminal "done" state.
func (s TaskStatus) IsDone() bool {
	return s == StatusDone
}
