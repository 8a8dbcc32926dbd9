package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"planner/internal/api"
)

const adminTokenHeader = "X-Admin-Token"

func (s *Server) handleAdminQuotaSweep(w http.ResponseWriter, r *http.Request) {
	dryRun, ok := s.adminSweepRequest(w, r)
	if !ok {
		return
	}

	result, err := s.housekeeping.SweepQuota(r.Context(), dryRun)
	if err != nil {
		s.writeServiceError(w, r, internalError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdminTrashPurge(w http.ResponseWriter, r *http.Request) {
	dryRun, ok := s.adminSweepRequest(w, r)
	if !ok {
		return
	}

	result, err := s.housekeeping.PurgeTrash(r.Context(), dryRun)
	if err != nil {
		s.writeServiceError(w, r, internalError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// adminSweepRequest authorizes the request and reads dry_run from the JSON
// body or the query string. Real runs need an X-Confirm: true header.
func (s *Server) adminSweepRequest(w http.ResponseWriter, r *http.Request) (bool, bool) {
	if !s.authorizeAdmin(w, r) {
		return false, false
	}
	if s.housekeeping == nil {
		s.writeServiceError(w, r, internalError(fmt.Errorf("housekeeping is not configured")))
		return false, false
	}

	var req api.SweepRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		err = classifyDecodeJSONError(err)
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return false, false
	}
	queryDryRun, err := queryBool(r, "dry_run")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return false, false
	}
	dryRun := req.DryRun || queryDryRun

	if !dryRun && r.Header.Get("X-Confirm") != "true" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("non-dry-run requires X-Confirm: true header"), ErrCodeMissingRequired))
		return false, false
	}
	return dryRun, true
}

func (s *Server) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.adminToken == "" {
		return true
	}
	provided := strings.TrimSpace(r.Header.Get(adminTokenHeader))
	if provided == "" {
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			provided = strings.TrimSpace(bearer)
		}
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.adminToken)) == 1 {
		return true
	}
	s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("admin token required")))
	return false
}
