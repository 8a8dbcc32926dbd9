package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"planner/internal/api"
	"planner/internal/filestore"
	"planner/internal/housekeeping"
	"planner/internal/store"
)

type testEnv struct {
	srv      *Server
	store    *store.Store
	files    *filestore.Store
	recorder *MetadataRecorder
	root     string
	dbPath   string
}

type testEnvOptions struct {
	maxFileBytes    int64
	maxRequestBytes int64
	allowedTypes    []string
	adminToken      string
	quotaBytes      int64
	fs              afero.Fs
	wrapMetadata    func(store.FileMetadataStore) store.FileMetadataStore
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, configure ...func(*testEnvOptions)) *testEnv {
	t.Helper()

	opts := testEnvOptions{
		maxFileBytes:    1 << 20,
		maxRequestBytes: 8 << 20,
		quotaBytes:      1 << 30,
		fs:              afero.NewOsFs(),
	}
	for _, fn := range configure {
		fn(&opts)
	}

	dbPath := filepath.Join(t.TempDir(), "planner.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	root := t.TempDir()
	files, err := filestore.New(opts.fs, root)
	if err != nil {
		t.Fatalf("open filestore: %v", err)
	}

	var meta store.FileMetadataStore = st
	if opts.wrapMetadata != nil {
		meta = opts.wrapMetadata(st)
	}
	logger := discardLogger()
	recorder := NewMetadataRecorder(meta, logger)
	if _, err := recorder.Probe(context.Background()); err != nil {
		t.Fatalf("probe recorder: %v", err)
	}

	sweeps := housekeeping.NewService(
		housekeeping.NewQuotaEnforcer(files, opts.quotaBytes, recorder, logger),
		housekeeping.NewTrashPurger(files, 30*24*time.Hour, logger),
	)
	srv := New("127.0.0.1:0", st, recorder, files, sweeps, Options{
		MaxFileBytes:      opts.maxFileBytes,
		MaxRequestBytes:   opts.maxRequestBytes,
		AllowedMediaTypes: opts.allowedTypes,
		AdminToken:        opts.adminToken,
	}, logger)

	return &testEnv{srv: srv, store: st, files: files, recorder: recorder, root: root, dbPath: dbPath}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.srv.routes().ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.do(t, req)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7340")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7340" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		_, err := ListenAddr("http://0.0.0.0:7340")
		if err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7340")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7340" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", w.Code)
	}

	w = env.doJSON(t, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from status, got %d (%s)", w.Code, w.Body.String())
	}
	status := decodeBody[api.StatusResponse](t, w)
	if status.Status != "ok" || !status.StoreOK || !status.UploadRootWritable || status.MetadataDegraded {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.StoreDriver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", status.StoreDriver)
	}
}

func TestStatusReportsDegradedMetadata(t *testing.T) {
	env := newTestEnv(t)
	dropFileMetadataTable(t, env)

	w := env.doJSON(t, http.MethodGet, "/api/status", nil)
	status := decodeBody[api.StatusResponse](t, w)
	if !status.MetadataDegraded || status.Status != "degraded" {
		t.Fatalf("expected degraded status, got %#v", status)
	}
}

func TestAdminSweepRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/admin/housekeeping/quota", api.SweepRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirmation, got %d", w.Code)
	}

	w = env.doJSON(t, http.MethodPost, "/api/admin/housekeeping/quota", api.SweepRequest{DryRun: true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for dry run, got %d (%s)", w.Code, w.Body.String())
	}
	result := decodeBody[housekeeping.QuotaResult](t, w)
	if !result.DryRun {
		t.Fatal("expected dry run result")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/housekeeping/trash", http.NoBody)
	req.Header.Set("X-Confirm", "true")
	w = env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for confirmed purge, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestAdminSweepToken(t *testing.T) {
	env := newTestEnv(t, func(o *testEnvOptions) { o.adminToken = "s3cret" })

	req := httptest.NewRequest(http.MethodPost, "/api/admin/housekeeping/trash?dry_run=true", http.NoBody)
	w := env.do(t, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	errResp := decodeBody[api.ErrorResponse](t, w)
	if errResp.ErrorCode != ErrCodeUnauthorized {
		t.Fatalf("expected error_code %d, got %d", ErrCodeUnauthorized, errResp.ErrorCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/housekeeping/trash?dry_run=true", http.NoBody)
	req.Header.Set("X-Admin-Token", "s3cret")
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/housekeeping/trash?dry_run=true", http.NoBody)
	req.Header.Set("Authorization", "Bearer s3cret")
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", w.Code)
	}
}

func TestAdminQuotaSweepEvictsAndForgetsRecords(t *testing.T) {
	env := newTestEnv(t, func(o *testEnvOptions) { o.quotaBytes = 10 })

	w := uploadMultipart(t, env, "42", []testPart{
		{name: "a.png", data: pngBytes(20)},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/housekeeping/quota", http.NoBody)
	req.Header.Set("X-Confirm", "true")
	w = env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	result := decodeBody[housekeeping.QuotaResult](t, w)
	if result.EvictedCount != 1 {
		t.Fatalf("expected one eviction, got %#v", result)
	}

	records, err := env.store.ListFilesByTask(context.Background(), "42")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected evicted record to be forgotten, got %d", len(records))
	}
	entries, err := os.ReadDir(filepath.Join(env.root, filestore.TrashDir))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected evicted file in trash, got %d entries (%v)", len(entries), err)
	}
}
