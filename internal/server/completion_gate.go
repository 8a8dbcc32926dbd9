package server

import (
	"context"
	"errors"
	"fmt"

	"planner/internal/filestore"
)

// completionRequiresPhoto is the client facing message of a failed gate.
const completionRequiresPhoto = "Para marcar Finalizado se requiere al menos una foto subida"

// CompletionGate blocks the done status until a task has at least one
// photo on disk. It reads the filesystem only, so it works in degraded mode.
type CompletionGate struct {
	files *filestore.Store
}

// NewCompletionGate constructs a CompletionGate.
func NewCompletionGate(files *filestore.Store) *CompletionGate {
	return &CompletionGate{files: files}
}

// Check returns a precondition_failed error unless tasks/{taskID} holds a
// visible regular file.
func (g *CompletionGate) Check(ctx context.Context, taskID string) error {
	if err := ValidateTaskID(taskID); err != nil {
		return err
	}
	ok, err := g.files.HasVisibleFile(ctx, taskID)
	if err != nil {
		return internalError(fmt.Errorf("check task files: %w", err))
	}
	if !ok {
		return preconditionFailed(errors.New(completionRequiresPhoto))
	}
	return nil
}
