package server

import (
	"net/http"
	"strings"

	"planner/internal/api"
	"planner/internal/store"
)

const defaultTaskListLimit = 100

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req api.TaskCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	resp, err := s.tasks.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{Limit: defaultTaskListLimit}

	for _, raw := range splitCSV(r.URL.Query().Get("status")) {
		status, err := normalizeStatus(raw)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, err)
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	filter.AssignedTo = strings.TrimSpace(r.URL.Query().Get("assignedTo"))

	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if limit > 0 {
		filter.Limit = limit
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	tasks, err := s.tasks.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseTaskID(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseTaskID(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	var req api.TaskUpdateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	resp, err := s.tasks.Update(r.Context(), id, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}
