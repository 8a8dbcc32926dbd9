package server

import (
	"net/http"

	"planner/internal/models"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and status.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Tasks.
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PUT /api/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", s.handleUpdateTask)

	// Task images.
	mux.HandleFunc("POST /api/tasks/{id}/images", s.handleUploadImages)
	mux.HandleFunc("GET /api/tasks/{id}/images", s.handleListImages)

	// Committed files.
	if s.files != nil {
		mux.Handle("GET "+models.UploadURLPrefix+"/", uploadsHandler(s.files))
	}

	// Admin.
	mux.HandleFunc("POST /api/admin/housekeeping/quota", s.handleAdminQuotaSweep)
	mux.HandleFunc("POST /api/admin/housekeeping/trash", s.handleAdminTrashPurge)

	return s.withRequestLogging(mux)
}
