package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"planner/internal/housekeeping"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "PLANNER_HTTP_TIMEOUT"
	adminTokenEnvKey   = "PLANNER_ADMIN_TOKEN"
	uploadFieldName    = "images"
)

// Client is a simple HTTP client for the planner API.
type Client struct {
	baseURL    string
	http       *http.Client
	adminToken string
}

// UploadFile is one file sent by UploadImages.
type UploadFile struct {
	Name    string
	Type    string
	Content io.Reader
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, req TaskCreateRequest) (TaskResponse, error) {
	var resp TaskResponse
	err := c.do(ctx, http.MethodPost, "/api/tasks", nil, req, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (TaskResponse, error) {
	var resp TaskResponse
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, req TaskUpdateRequest) (TaskResponse, error) {
	var resp TaskResponse
	err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), nil, req, &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context, query url.Values) ([]TaskResponse, error) {
	var resp []TaskResponse
	err := c.do(ctx, http.MethodGet, "/api/tasks", query, nil, &resp)
	return resp, err
}

func (c *Client) ListImages(ctx context.Context, taskID string) (ImageListResponse, error) {
	var resp ImageListResponse
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID)+"/images", nil, nil, &resp)
	return resp, err
}

// UploadImages sends files as one multipart request. When every file is
// rejected the per-file failures are returned alongside an *APIError built
// from the first one.
func (c *Client) UploadImages(ctx context.Context, taskID, uploadedBy string, files []UploadFile) (UploadResponse, error) {
	var resp UploadResponse

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadFieldName, file.Name))
		if file.Type != "" {
			header.Set("Content-Type", file.Type)
		} else {
			header.Set("Content-Type", "application/octet-stream")
		}
		part, err := mw.CreatePart(header)
		if err != nil {
			return resp, err
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return resp, fmt.Errorf("read %s: %w", file.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return resp, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tasks/"+url.PathEscape(taskID)+"/images", &body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if uploadedBy != "" {
		req.Header.Set("X-Uploaded-By", uploadedBy)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, err
	}
	if httpResp.StatusCode < 400 {
		err = json.Unmarshal(payload, &resp)
		return resp, err
	}
	if jsonErr := json.Unmarshal(payload, &resp); jsonErr == nil && len(resp.Errors) > 0 {
		first := resp.Errors[0]
		return resp, &APIError{Status: httpResp.StatusCode, Code: first.Code, ErrorCode: first.ErrorCode, Message: first.Name + ": " + first.Error}
	}
	return resp, decodeErrorBody(httpResp.StatusCode, httpResp.Status, payload)
}

// RunQuotaSweep asks the server to run a quota sweep now. Real runs must be
// confirmed.
func (c *Client) RunQuotaSweep(ctx context.Context, dryRun, confirm bool) (housekeeping.QuotaResult, error) {
	var resp housekeeping.QuotaResult
	err := c.doAdmin(ctx, "/api/admin/housekeeping/quota", SweepRequest{DryRun: dryRun}, confirm, &resp)
	return resp, err
}

// RunTrashPurge asks the server to purge expired trash now.
func (c *Client) RunTrashPurge(ctx context.Context, dryRun, confirm bool) (housekeeping.PurgeResult, error) {
	var resp housekeeping.PurgeResult
	err := c.doAdmin(ctx, "/api/admin/housekeeping/trash", SweepRequest{DryRun: dryRun}, confirm, &resp)
	return resp, err
}

func (c *Client) doAdmin(ctx context.Context, path string, body any, confirm bool, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if confirm {
		req.Header.Set("X-Confirm", "true")
	}
	c.setAdminHeader(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	payload, _ := io.ReadAll(resp.Body)
	return decodeErrorBody(resp.StatusCode, resp.Status, payload)
}

func decodeErrorBody(status int, statusText string, payload []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(payload, &errResp); err == nil && errResp.Error != "" {
		return &APIError{Status: status, Code: errResp.Code, ErrorCode: errResp.ErrorCode, Message: errResp.Error}
	}
	return &APIError{Status: status, Message: "api error: " + statusText}
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set("X-Admin-Token", c.adminToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
