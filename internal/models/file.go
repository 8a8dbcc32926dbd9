package models

import (
	"path"
	"time"
)

// UploadURLPrefix is the public mount point of the storage root's task tree.
const UploadURLPrefix = "/uploads/tasks"

// StoredFile is the durable metadata record of one uploaded task file.
type StoredFile struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	FileName   string    `json:"fileName"`
	URLPath    string    `json:"urlPath"`
	MimeType   string    `json:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes"`
	UploadedBy *string   `json:"uploadedBy,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// FileURLPath derives the public path of a task file.
func FileURLPath(taskID, fileName string) string {
	return path.Join(UploadURLPrefix, taskID, fileName)
}
