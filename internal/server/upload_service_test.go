package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"planner/internal/filestore"
	"planner/internal/models"
)

type memMetadata struct {
	available bool
	recordErr error
	records   []models.StoredFile
	// beforeRecord runs ahead of every RecordFile call.
	beforeRecord func(file *models.StoredFile)
}

func (m *memMetadata) RecordFile(_ context.Context, file *models.StoredFile) error {
	if m.beforeRecord != nil {
		m.beforeRecord(file)
	}
	if m.recordErr != nil {
		return m.recordErr
	}
	m.records = append(m.records, *file)
	return nil
}

func (m *memMetadata) ListFilesByTask(_ context.Context, taskID string) ([]models.StoredFile, error) {
	var out []models.StoredFile
	for _, record := range m.records {
		if record.TaskID == taskID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memMetadata) ForgetFile(_ context.Context, taskID, fileName string) error {
	kept := m.records[:0]
	for _, record := range m.records {
		if record.TaskID != taskID || record.FileName != fileName {
			kept = append(kept, record)
		}
	}
	m.records = kept
	return nil
}

func (m *memMetadata) FileMetadataAvailable(context.Context) (bool, error) {
	return m.available, nil
}

// renameGuardFs fails renames whose destination lives under blocked.
type renameGuardFs struct {
	afero.Fs
	blocked string
}

func (f renameGuardFs) Rename(oldname, newname string) error {
	if strings.HasPrefix(newname, f.blocked+string(filepath.Separator)) {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrPermission}
	}
	return f.Fs.Rename(oldname, newname)
}

func newUploadServiceForTest(t *testing.T, fs afero.Fs, meta *memMetadata) (*UploadService, *filestore.Store) {
	t.Helper()
	files, err := filestore.New(fs, "/data")
	if err != nil {
		t.Fatalf("open filestore: %v", err)
	}
	recorder := NewMetadataRecorder(meta, discardLogger())
	if _, err := recorder.Probe(context.Background()); err != nil {
		t.Fatalf("probe: %v", err)
	}
	return NewUploadService(files, recorder, 1024, nil, discardLogger()), files
}

func TestUploadServiceRecordsFiles(t *testing.T) {
	meta := &memMetadata{available: true}
	svc, files := newUploadServiceForTest(t, afero.NewMemMapFs(), meta)

	result, err := svc.Upload(context.Background(), "42", []UploadPayload{
		{Name: "a.png", Data: pngBytes(10)},
	}, "ana")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Files[0].State != stateRecorded {
		t.Fatalf("expected recorded state, got %s", result.Files[0].State)
	}
	if len(meta.records) != 1 || meta.records[0].UploadedBy == nil || *meta.records[0].UploadedBy != "ana" {
		t.Fatalf("unexpected records %#v", meta.records)
	}
	ok, err := afero.Exists(files.Fs(), filepath.Join(files.TaskDir("42"), result.Files[0].Stored.Name))
	if err != nil || !ok {
		t.Fatalf("expected committed file, exists=%v err=%v", ok, err)
	}
}

func TestUploadServiceRejectsEmptyBatch(t *testing.T) {
	svc, _ := newUploadServiceForTest(t, afero.NewMemMapFs(), &memMetadata{available: true})
	if _, err := svc.Upload(context.Background(), "42", nil, ""); httpStatusFromError(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %v", err)
	}
	if _, err := svc.Upload(context.Background(), "../x", []UploadPayload{{Name: "a", Data: []byte("x")}}, ""); httpStatusFromError(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad task id, got %v", err)
	}
}

func TestUploadServiceRollsBackOnRecordFailure(t *testing.T) {
	meta := &memMetadata{available: true, recordErr: errors.New("constraint failed")}
	svc, files := newUploadServiceForTest(t, afero.NewMemMapFs(), meta)

	result, err := svc.Upload(context.Background(), "42", []UploadPayload{{Name: "a.png", Data: pngBytes(10)}}, "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	outcome := result.Files[0]
	if outcome.State != stateRolledBack || outcome.Accepted() {
		t.Fatalf("expected rolled back outcome, got %#v", outcome)
	}
	status, resp := result.Response()
	if status != http.StatusInternalServerError || resp.Success {
		t.Fatalf("unexpected response %d %#v", status, resp)
	}
	if has, _ := files.HasVisibleFile(context.Background(), "42"); has {
		t.Fatal("rolled back file must leave the task directory")
	}
}

func TestUploadServiceReportsOrphanWhenRollbackFails(t *testing.T) {
	meta := &memMetadata{available: true, recordErr: errors.New("constraint failed")}
	fs := renameGuardFs{Fs: afero.NewMemMapFs(), blocked: filepath.Join("/data", filestore.TmpDir)}
	// Staging writes straight into tmp, so only the rollback rename is blocked.
	svc, files := newUploadServiceForTest(t, fs, meta)

	result, err := svc.Upload(context.Background(), "42", []UploadPayload{{Name: "a.png", Data: pngBytes(10)}}, "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	outcome := result.Files[0]
	if outcome.State != stateOrphaned {
		t.Fatalf("expected orphaned state, got %s", outcome.State)
	}
	if httpStatusFromError(outcome.Err) != http.StatusInternalServerError {
		t.Fatalf("expected 500 failure, got %v", outcome.Err)
	}
	if has, _ := files.HasVisibleFile(context.Background(), "42"); !has {
		t.Fatal("orphaned file stays in the task directory")
	}
}

func TestUploadServiceKeepsFileWhenMetadataTableMissing(t *testing.T) {
	meta := &memMetadata{available: false}
	svc, _ := newUploadServiceForTest(t, afero.NewMemMapFs(), meta)

	result, err := svc.Upload(context.Background(), "42", []UploadPayload{{Name: "a.png", Data: pngBytes(10)}}, "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !result.Files[0].Accepted() || result.Files[0].State != stateCommitted {
		t.Fatalf("expected committed and accepted outcome, got %#v", result.Files[0])
	}
	if len(meta.records) != 0 {
		t.Fatalf("no records expected in degraded mode, got %d", len(meta.records))
	}
}

func TestUploadServiceStopsOnCanceledContext(t *testing.T) {
	svc, files := newUploadServiceForTest(t, afero.NewMemMapFs(), &memMetadata{available: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Upload(ctx, "42", []UploadPayload{{Name: "a.png", Data: pngBytes(10)}}, "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Files[0].Accepted() {
		t.Fatal("canceled upload must not be accepted")
	}
	entries, err := afero.ReadDir(files.Fs(), files.TmpPath())
	if err != nil {
		t.Fatalf("read tmp: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected staged file to be discarded, got %d entries", len(entries))
	}
}

func TestUploadServiceDropsRecordOfFileEvictedBeforeRecord(t *testing.T) {
	fs := afero.NewMemMapFs()
	meta := &memMetadata{available: true}
	svc, files := newUploadServiceForTest(t, fs, meta)
	meta.beforeRecord = func(file *models.StoredFile) {
		// A quota sweep moves the file to trash and forgets a record that
		// is not there yet.
		src := filepath.Join(files.TaskDir(file.TaskID), file.FileName)
		if err := fs.Rename(src, filepath.Join(files.TrashPath(), "1-evicted")); err != nil {
			t.Fatalf("evict: %v", err)
		}
	}

	result, err := svc.Upload(context.Background(), "42", []UploadPayload{{Name: "a.png", Data: pngBytes(10)}}, "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	outcome := result.Files[0]
	if outcome.State != stateEvicted || outcome.Accepted() {
		t.Fatalf("expected evicted outcome, got %#v", outcome)
	}
	if len(meta.records) != 0 {
		t.Fatalf("expected no record for an evicted file, got %#v", meta.records)
	}
	entries, err := afero.ReadDir(fs, files.TaskDir("42"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read task dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty task dir, got %d entries", len(entries))
	}
}
