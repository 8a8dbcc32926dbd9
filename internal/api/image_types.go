package api

import "time"

// ImageUpload is one base64 encoded image in a JSON upload body. Data may
// be plain base64 or a data URL.
type ImageUpload struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Data string `json:"data"`
}

// ImageUploadRequest is the JSON form of POST /api/tasks/{id}/images.
type ImageUploadRequest struct {
	Images     []ImageUpload `json:"images"`
	UploadedBy string        `json:"uploadedBy,omitempty"`
}

// UploadedFile describes an accepted file.
type UploadedFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// UploadFailure describes a rejected file.
type UploadFailure struct {
	Name      string `json:"name"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// UploadResponse is returned by the upload endpoint.
type UploadResponse struct {
	Success bool            `json:"success"`
	Files   []UploadedFile  `json:"files"`
	Errors  []UploadFailure `json:"errors"`
}

// ImageDescriptor is one entry of a task's image listing. Entries built from
// the directory only carry Name and URL.
type ImageDescriptor struct {
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Type       string     `json:"type,omitempty"`
	Size       *int64     `json:"size,omitempty"`
	UploadedBy *string    `json:"uploadedBy,omitempty"`
	UploadedAt *time.Time `json:"uploadedAt,omitempty"`
}

// ImageListResponse is returned by GET /api/tasks/{id}/images.
type ImageListResponse struct {
	Files []ImageDescriptor `json:"files"`
}
