package api

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// StatusResponse is the response from GET /api/status.
type StatusResponse struct {
	Status             string `json:"status"`
	StoreDriver        string `json:"store_driver"`
	StoreOK            bool   `json:"store_ok"`
	StoreError         string `json:"store_error,omitempty"`
	UploadRoot         string `json:"upload_root"`
	UploadRootWritable bool   `json:"upload_root_writable"`
	UploadRootError    string `json:"upload_root_error,omitempty"`
	MetadataDegraded   bool   `json:"metadata_degraded"`
}

// SweepRequest is the optional body of the admin housekeeping endpoints.
type SweepRequest struct {
	DryRun bool `json:"dry_run"`
}
