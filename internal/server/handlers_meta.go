package server

import (
	"net/http"

	"planner/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports store reachability, upload root writability and
// whether file metadata is running degraded.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := api.StatusResponse{Status: "ok"}

	if s.pinger != nil {
		resp.StoreDriver = string(s.pinger.Driver())
		if err := s.pinger.Ping(ctx); err != nil {
			resp.StoreError = err.Error()
			resp.Status = "error"
		} else {
			resp.StoreOK = true
		}
	}

	if s.files != nil {
		resp.UploadRoot = s.files.Root()
		if err := s.files.ProbeWritable(ctx); err != nil {
			resp.UploadRootError = err.Error()
			resp.Status = "error"
		} else {
			resp.UploadRootWritable = true
		}
	}

	if s.recorder != nil {
		if _, err := s.recorder.Probe(ctx); err != nil {
			s.log().Warn("probe file metadata", "error", err)
		}
	}
	resp.MetadataDegraded = s.recorder.Degraded()
	if resp.MetadataDegraded && resp.Status == "ok" {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status == "error" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}
