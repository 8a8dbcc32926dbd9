package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// isolate points HOME and the working directory at empty temp dirs and
// clears every planner variable for the test.
func isolate(t *testing.T) (home, workspace string) {
	t.Helper()
	home = t.TempDir()
	workspace = t.TempDir()

	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(workspace); err != nil {
		t.Fatalf("chdir workspace: %v", err)
	}

	t.Setenv("HOME", home)
	for _, key := range []string{
		configDirEnvKey, trustProjectConfigEnvKey,
		"UPLOAD_DIR", "UPLOAD_MAX_FILE_BYTES", "UPLOAD_MAX_REQUEST_BYTES", "UPLOAD_ALLOWED_MEDIA_TYPES",
		"UPLOAD_QUOTA_BYTES", "QUOTA_CHECK_INTERVAL_MS", "UPLOAD_TRASH_RETENTION_DAYS",
		"PLANNER_API_URL", "PLANNER_DB", "PLANNER_DB_DRIVER", "PLANNER_DATABASE_URL",
		"PLANNER_ADMIN_TOKEN", "PLANNER_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
	return home, workspace
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.DBDriver)
	}
	if cfg.Uploads.MaxFileBytes != 25*1024*1024 {
		t.Fatalf("expected 25 MiB file limit, got %d", cfg.Uploads.MaxFileBytes)
	}
	if cfg.Housekeeping.QuotaBytes != 10*1024*1024*1024 {
		t.Fatalf("expected 10 GiB quota, got %d", cfg.Housekeeping.QuotaBytes)
	}
	if cfg.Housekeeping.CheckInterval.Duration != 24*time.Hour {
		t.Fatalf("expected daily check interval, got %v", cfg.Housekeeping.CheckInterval)
	}
	if cfg.Housekeeping.TrashRetention() != 30*24*time.Hour {
		t.Fatalf("expected 30 day retention, got %v", cfg.Housekeeping.TrashRetention())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
log_level = "warn"

[uploads]
dir = "/srv/uploads"
max_file_bytes = "5MiB"
allowed_media_types = ["IMAGE/*", "application/pdf", "image/*"]

[housekeeping]
quota_bytes = 1048576
check_interval = "6h"
trash_retention_days = 7
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.normalizeDefaults()

	if cfg.APIURL != "http://localhost:9999" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected top-level values: %#v", cfg)
	}
	if cfg.Uploads.Dir != "/srv/uploads" {
		t.Fatalf("expected uploads dir, got %q", cfg.Uploads.Dir)
	}
	if cfg.Uploads.MaxFileBytes != 5*1024*1024 {
		t.Fatalf("expected 5 MiB, got %d", cfg.Uploads.MaxFileBytes)
	}
	if cfg.Housekeeping.QuotaBytes != 1048576 {
		t.Fatalf("expected integer quota, got %d", cfg.Housekeeping.QuotaBytes)
	}
	if cfg.Housekeeping.CheckInterval.Duration != 6*time.Hour {
		t.Fatalf("expected 6h interval, got %v", cfg.Housekeeping.CheckInterval)
	}
	if cfg.Housekeeping.TrashRetentionDays != 7 {
		t.Fatalf("expected 7 days, got %d", cfg.Housekeeping.TrashRetentionDays)
	}
	if want := []string{"application/pdf", "image/*"}; !reflect.DeepEqual(cfg.Uploads.AllowedMediaTypes, want) {
		t.Fatalf("expected normalized media types %v, got %v", want, cfg.Uploads.AllowedMediaTypes)
	}
}

func TestLoadFileRejectsBadByteSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte("[uploads]\nmax_file_bytes = \"lots\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error for invalid byte size")
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.planner.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range AllowedKeys() {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("project_prefix") {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.Uploads.AllowedMediaTypes = []string{"image/*", "application/pdf"}

	cases := map[string]string{
		"api_url":                           DefaultAPIURL,
		"db_driver":                         "sqlite",
		"uploads.max_file_bytes":            "26214400",
		"uploads.allowed_media_types":       "image/*,application/pdf",
		"housekeeping.check_interval":       "24h0m0s",
		"housekeeping.trash_retention_days": "30",
	}
	for key, want := range cases {
		got, err := cfg.Get(key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if got != want {
			t.Fatalf("get %s: expected %q, got %q", key, want, got)
		}
	}
	if _, err := cfg.Get("nope"); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestSetKeyCreatesAndUpdatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "planner.toml")
	if err := SetKey(path, "api_url", "http://keep"); err != nil {
		t.Fatalf("set api_url: %v", err)
	}
	if err := SetKey(path, "housekeeping.quota_bytes", "2GiB"); err != nil {
		t.Fatalf("set quota: %v", err)
	}
	if err := SetKey(path, "housekeeping.check_interval", "3600000"); err != nil {
		t.Fatalf("set interval: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://keep" {
		t.Fatalf("expected preserved api_url, got %q", cfg.APIURL)
	}
	if cfg.Housekeeping.QuotaBytes != 2<<30 {
		t.Fatalf("expected 2 GiB quota, got %d", cfg.Housekeeping.QuotaBytes)
	}
	if cfg.Housekeeping.CheckInterval.Duration != time.Hour {
		t.Fatalf("expected 1h interval, got %v", cfg.Housekeeping.CheckInterval)
	}
}

func TestSetKeyValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	if err := SetKey(path, "invalid_key", "value"); err == nil {
		t.Fatal("expected error for invalid key")
	}
	if err := SetKey(path, "housekeeping.trash_retention_days", "0"); err == nil {
		t.Fatal("expected error for non-positive retention")
	}
	if err := SetKey(path, "uploads.max_file_bytes", "huge"); err == nil {
		t.Fatal("expected error for invalid byte size")
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadDefaultsPathsToWorkspace(t *testing.T) {
	_, workspace := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != filepath.Join(workspace, DefaultDBFileName) {
		t.Fatalf("expected default workspace db path, got %q", cfg.DBPath)
	}
	if cfg.Uploads.Dir != filepath.Join(workspace, DefaultUploadDir) {
		t.Fatalf("expected default workspace upload dir, got %q", cfg.Uploads.Dir)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PLANNER_API_URL", "http://example.com:8080")
	t.Setenv("PLANNER_DB", "/tmp/override.db")
	t.Setenv("PLANNER_ADMIN_TOKEN", " secret ")
	t.Setenv("UPLOAD_DIR", "/mnt/photos")
	t.Setenv("UPLOAD_QUOTA_BYTES", "1073741824")
	t.Setenv("UPLOAD_MAX_FILE_BYTES", "10MB")
	t.Setenv("QUOTA_CHECK_INTERVAL_MS", "60000")
	t.Setenv("UPLOAD_TRASH_RETENTION_DAYS", "14")
	t.Setenv("UPLOAD_ALLOWED_MEDIA_TYPES", "image/png, image/jpeg")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://example.com:8080" || cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("expected api/db env overrides, got %q %q", cfg.APIURL, cfg.DBPath)
	}
	if cfg.AdminToken != "secret" {
		t.Fatalf("expected trimmed admin token, got %q", cfg.AdminToken)
	}
	if cfg.Uploads.Dir != "/mnt/photos" {
		t.Fatalf("expected UPLOAD_DIR override, got %q", cfg.Uploads.Dir)
	}
	if cfg.Housekeeping.QuotaBytes != 1<<30 {
		t.Fatalf("expected quota override, got %d", cfg.Housekeeping.QuotaBytes)
	}
	if cfg.Uploads.MaxFileBytes != 10_000_000 {
		t.Fatalf("expected 10MB file limit, got %d", cfg.Uploads.MaxFileBytes)
	}
	if cfg.Housekeeping.CheckInterval.Duration != time.Minute {
		t.Fatalf("expected 1m interval, got %v", cfg.Housekeeping.CheckInterval)
	}
	if cfg.Housekeeping.TrashRetentionDays != 14 {
		t.Fatalf("expected 14 retention days, got %d", cfg.Housekeeping.TrashRetentionDays)
	}
	if want := []string{"image/jpeg", "image/png"}; !reflect.DeepEqual(cfg.Uploads.AllowedMediaTypes, want) {
		t.Fatalf("expected %v, got %v", want, cfg.Uploads.AllowedMediaTypes)
	}
}

func TestEnvOverridesRejectInvalidNumbers(t *testing.T) {
	isolate(t)
	t.Setenv("QUOTA_CHECK_INTERVAL_MS", "daily")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid QUOTA_CHECK_INTERVAL_MS")
	}
}

func TestLoadIgnoresProjectConfigByDefault(t *testing.T) {
	home, workspace := isolate(t)
	if err := os.WriteFile(filepath.Join(home, configFileName), []byte("api_url = \"http://global\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://global" {
		t.Fatalf("expected global config api_url, got %q", cfg.APIURL)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("expected no trusted project config path, got %q", cfg.TrustedProjectConfigPath)
	}
}

func TestLoadAppliesProjectConfigWhenTrusted(t *testing.T) {
	home, workspace := isolate(t)
	if err := os.WriteFile(filepath.Join(home, configFileName), []byte("api_url = \"http://global\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	t.Setenv(trustProjectConfigEnvKey, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://project" {
		t.Fatalf("expected trusted project api_url, got %q", cfg.APIURL)
	}
	if cfg.TrustedProjectConfigPath != filepath.Join(workspace, configFileName) {
		t.Fatalf("unexpected trusted path %q", cfg.TrustedProjectConfigPath)
	}
}

func TestLoadDotEnvDoesNotOverrideExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PLANNER_DOTENV_NEW=from-file\nPLANNER_DOTENV_SET=from-file\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("PLANNER_DOTENV_SET", "from-env")
	t.Setenv("PLANNER_DOTENV_NEW", "")
	if err := os.Unsetenv("PLANNER_DOTENV_NEW"); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load .env: %v", err)
	}
	if got := os.Getenv("PLANNER_DOTENV_NEW"); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
	if got := os.Getenv("PLANNER_DOTENV_SET"); got != "from-env" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]ByteSize{
		"1024":  1024,
		"1KiB":  1024,
		"10 GB": 10_000_000_000,
		"25MiB": 25 << 20,
	}
	for raw, want := range cases {
		got, err := ParseByteSize(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %d, got %d", raw, want, got)
		}
	}
	if _, err := ParseByteSize("-1"); err == nil {
		t.Fatal("expected negative size error")
	}
	if ByteSize(25<<20).String() != "25 MiB" {
		t.Fatalf("unexpected humanized size %q", ByteSize(25<<20).String())
	}
}
