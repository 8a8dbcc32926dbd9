package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"planner/internal/api"
	"planner/internal/filestore"
	"planner/internal/models"
)

// fileState tracks one file through an upload.
type fileState string

const (
	stateReceived   fileState = "received"
	stateRejected   fileState = "rejected"
	stateStaged     fileState = "staged"
	stateCommitted  fileState = "committed"
	stateRecorded   fileState = "recorded"
	stateRolledBack fileState = "rolled_back"
	stateOrphaned   fileState = "orphaned"
	stateEvicted    fileState = "evicted"
)

// UploadPayload is one file as received from a client. Err carries a
// failure found while decoding the request, such as bad base64 or an
// oversize part, and short-circuits processing of this file.
type UploadPayload struct {
	Name      string
	MediaType string
	Data      []byte
	Err       error
}

// FileOutcome is the final state of one payload.
type FileOutcome struct {
	Name   string
	State  fileState
	Stored *api.UploadedFile
	Err    error
}

// Accepted reports whether the file is stored under its task directory.
func (o FileOutcome) Accepted() bool {
	return o.Stored != nil
}

// UploadResult holds per-file outcomes in request order.
type UploadResult struct {
	Files []FileOutcome
}

// Response converts the result into the wire shape and picks the status.
// Any accepted file makes it a 201; otherwise the first failure decides.
func (r UploadResult) Response() (int, api.UploadResponse) {
	resp := api.UploadResponse{Files: []api.UploadedFile{}, Errors: []api.UploadFailure{}}
	status := 0
	for _, outcome := range r.Files {
		if outcome.Accepted() {
			resp.Files = append(resp.Files, *outcome.Stored)
			continue
		}
		fileStatus := httpStatusFromError(outcome.Err)
		if status == 0 {
			status = fileStatus
		}
		resp.Errors = append(resp.Errors, api.UploadFailure{
			Name:      outcome.Name,
			Error:     publicMessage(fileStatus, outcome.Err),
			Code:      errorCode(fileStatus, outcome.Err),
			ErrorCode: errorNumericCode(fileStatus, outcome.Err),
		})
	}
	if len(resp.Files) > 0 {
		resp.Success = true
		return http.StatusCreated, resp
	}
	if status == 0 {
		status = http.StatusBadRequest
	}
	return status, resp
}

// UploadService stages, commits and records uploaded task files.
type UploadService struct {
	files        *filestore.Store
	recorder     *MetadataRecorder
	maxFileBytes int64
	allowedTypes []string
	logger       *slog.Logger
	now          func() time.Time
}

// NewUploadService constructs an UploadService.
func NewUploadService(files *filestore.Store, recorder *MetadataRecorder, maxFileBytes int64, allowedTypes []string, logger *slog.Logger) *UploadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{
		files:        files,
		recorder:     recorder,
		maxFileBytes: maxFileBytes,
		allowedTypes: allowedTypes,
		logger:       logger.With("component", "upload"),
		now:          time.Now,
	}
}

// MaxFileBytes returns the per-file limit.
func (u *UploadService) MaxFileBytes() int64 {
	return u.maxFileBytes
}

// Upload processes every payload independently. The returned error is only
// set for request level problems; per-file failures live in the result.
func (u *UploadService) Upload(ctx context.Context, taskID string, payloads []UploadPayload, uploadedBy string) (UploadResult, error) {
	var result UploadResult
	if err := ValidateTaskID(taskID); err != nil {
		return result, err
	}
	if len(payloads) == 0 {
		return result, badRequestCode(fmt.Errorf("no files uploaded"), ErrCodeMissingRequired)
	}

	var uploader *string
	if uploadedBy != "" {
		uploader = &uploadedBy
	}

	result.Files = make([]FileOutcome, 0, len(payloads))
	for _, payload := range payloads {
		result.Files = append(result.Files, u.uploadOne(ctx, taskID, payload, uploader))
	}
	return result, nil
}

func (u *UploadService) uploadOne(ctx context.Context, taskID string, payload UploadPayload, uploadedBy *string) FileOutcome {
	outcome := FileOutcome{Name: firstNonEmpty(payload.Name, "file"), State: stateReceived}
	reject := func(err error) FileOutcome {
		outcome.State = stateRejected
		outcome.Err = err
		u.logger.Debug("upload rejected", "task_id", taskID, "name", outcome.Name, "error", err)
		return outcome
	}

	if payload.Err != nil {
		return reject(payload.Err)
	}
	size := int64(len(payload.Data))
	if u.maxFileBytes > 0 && size > u.maxFileBytes {
		return reject(payloadTooLarge(fmt.Errorf("file exceeds %s limit", humanize.IBytes(uint64(u.maxFileBytes)))))
	}
	if size == 0 {
		return reject(badRequestCode(fmt.Errorf("file is empty"), ErrCodeMissingRequired))
	}

	mediaType := u.resolveMediaType(payload)
	if !mediaTypeAllowed(u.allowedTypes, mediaType) {
		return reject(badRequestCode(fmt.Errorf("media type %s is not allowed", mediaType), ErrCodeInvalidMediaType))
	}
	name := filestore.SanitizeName(payload.Name, mediaType)

	staged, err := u.files.Stage(ctx, name, bytes.NewReader(payload.Data), u.maxFileBytes)
	if err != nil {
		if errors.Is(err, filestore.ErrTooLarge) {
			return reject(payloadTooLarge(err))
		}
		outcome.Err = storageWriteFailure(fmt.Errorf("stage %s: %w", name, err))
		u.logger.Error("stage upload", "task_id", taskID, "name", name, "error", err)
		return outcome
	}
	outcome.State = stateStaged

	if err := ctx.Err(); err != nil {
		u.discard(staged)
		outcome.Err = storageWriteFailure(err)
		return outcome
	}
	committed, err := u.files.Commit(ctx, staged, taskID)
	if err != nil {
		u.discard(staged)
		outcome.Err = storageWriteFailure(fmt.Errorf("commit %s: %w", staged.Name, err))
		u.logger.Error("commit upload", "task_id", taskID, "name", staged.Name, "error", err)
		return outcome
	}
	outcome.State = stateCommitted

	record := &models.StoredFile{
		TaskID:     taskID,
		FileName:   committed.Name,
		URLPath:    models.FileURLPath(taskID, committed.Name),
		MimeType:   mediaType,
		SizeBytes:  committed.Size,
		UploadedBy: uploadedBy,
		UploadedAt: u.now().UTC(),
	}
	stored := &api.UploadedFile{Name: committed.Name, URL: record.URLPath, Size: committed.Size, Type: mediaType}

	err = u.recorder.Record(ctx, record)
	switch {
	case err == nil:
		if u.evictedBeforeRecord(ctx, committed) {
			outcome.State = stateEvicted
			outcome.Err = storageWriteFailure(fmt.Errorf("%s was evicted before its record was written", committed.Name))
			return outcome
		}
		outcome.State = stateRecorded
		outcome.Stored = stored
	case errors.Is(err, ErrMetadataUnavailable):
		u.logger.Warn("file kept without metadata record", "task_id", taskID, "name", committed.Name)
		outcome.Stored = stored
	default:
		outcome.Err = metadataWriteFailure(err)
		u.rollback(taskID, committed, &outcome, err)
	}
	return outcome
}

// rollback moves a committed file back to tmp so no file outlives a failed
// record. It never looks at the request context.
func (u *UploadService) rollback(taskID string, committed filestore.Committed, outcome *FileOutcome, cause error) {
	tmpPath, err := u.files.Rollback(committed)
	if err != nil {
		outcome.State = stateOrphaned
		u.logger.Error("orphaned upload after metadata failure",
			"task_id", taskID,
			"name", committed.Name,
			"orphaned_path", committed.Path,
			"metadata_error", cause,
			"error", err,
		)
		return
	}
	outcome.State = stateRolledBack
	u.logger.Warn("upload rolled back after metadata failure",
		"task_id", taskID,
		"name", committed.Name,
		"rolled_back_path", tmpPath,
		"error", cause,
	)
}

// evictedBeforeRecord catches a quota sweep that moved the file to trash
// between commit and record. The sweep forgot a record that did not exist
// yet, so the one just written is dropped here.
func (u *UploadService) evictedBeforeRecord(ctx context.Context, committed filestore.Committed) bool {
	exists, err := afero.Exists(u.files.Fs(), committed.Path)
	if err != nil || exists {
		return false
	}
	u.logger.Warn("upload evicted before its record was written", "task_id", committed.TaskID, "name", committed.Name)
	if err := u.recorder.Forget(context.WithoutCancel(ctx), committed.TaskID, committed.Name); err != nil {
		u.logger.Error("forget record of evicted upload", "task_id", committed.TaskID, "name", committed.Name, "error", err)
	}
	return true
}

func (u *UploadService) discard(staged filestore.Staged) {
	if err := u.files.Discard(staged); err != nil {
		u.logger.Error("discard staged upload", "path", staged.Path, "error", err)
	}
}

// resolveMediaType prefers the declared type and falls back to sniffing the
// content when the client sent nothing useful.
func (u *UploadService) resolveMediaType(payload UploadPayload) string {
	declared := normalizeMediaType(payload.MediaType)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return normalizeMediaType(mimetype.Detect(payload.Data).String())
}
