package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestUploadImagesSendsMultipart(t *testing.T) {
	var gotNames []string
	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/42/images" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotUser = r.Header.Get("X-Uploaded-By")
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			if part.FormName() != uploadFieldName {
				t.Errorf("unexpected field %q", part.FormName())
			}
			gotNames = append(gotNames, part.FileName())
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(UploadResponse{
			Success: true,
			Files:   []UploadedFile{{Name: "1-a.png", URL: "/uploads/tasks/42/1-a.png", Size: 3, Type: "image/png"}},
			Errors:  []UploadFailure{},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.UploadImages(context.Background(), "42", "ana", []UploadFile{
		{Name: "a.png", Type: "image/png", Content: strings.NewReader("png")},
		{Name: "b.jpg", Content: strings.NewReader("jpg")},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !resp.Success || len(resp.Files) != 1 {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if strings.Join(gotNames, ",") != "a.png,b.jpg" {
		t.Fatalf("unexpected part names: %v", gotNames)
	}
	if gotUser != "ana" {
		t.Fatalf("expected uploader header, got %q", gotUser)
	}
}

func TestUploadImagesAllRejectedReturnsFirstFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_ = json.NewEncoder(w).Encode(UploadResponse{
			Files:  []UploadedFile{},
			Errors: []UploadFailure{{Name: "big.png", Error: "file too large", Code: "payload_too_large", ErrorCode: 1002}},
		})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).UploadImages(context.Background(), "42", "", []UploadFile{
		{Name: "big.png", Content: strings.NewReader("x")},
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusRequestEntityTooLarge || apiErr.Code != "payload_too_large" {
		t.Fatalf("unexpected api error: %#v", apiErr)
	}
	if len(resp.Errors) != 1 {
		t.Fatalf("expected per-file failures in response, got %#v", resp)
	}
}

func TestAdminSweepSendsConfirmAndToken(t *testing.T) {
	t.Setenv(adminTokenEnvKey, "s3cret")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Confirm") != "true" {
			t.Errorf("expected confirm header")
		}
		if r.Header.Get("X-Admin-Token") != "s3cret" {
			t.Errorf("expected admin token header")
		}
		var req SweepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DryRun {
			t.Errorf("unexpected sweep request %#v (%v)", req, err)
		}
		_, _ = io.WriteString(w, `{"evicted_count":2,"dry_run":false}`)
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL).RunQuotaSweep(context.Background(), false, true)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.EvictedCount != 2 {
		t.Fatalf("expected evicted_count 2, got %d", result.EvictedCount)
	}
}

func TestDecodeErrorUsesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"Para marcar Finalizado se requiere al menos una foto subida","code":"precondition_failed","error_code":2103}`)
	}))
	defer srv.Close()

	status := "Finalizado"
	_, err := NewClient(srv.URL).UpdateTask(context.Background(), "43", TaskUpdateRequest{Status: &status})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.ErrorCode != 2103 || apiErr.Code != "precondition_failed" {
		t.Fatalf("unexpected api error: %#v", apiErr)
	}
}
