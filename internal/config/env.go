package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// environment lists every variable that overrides file configuration.
// Upload and housekeeping names are shared with earlier deployments.
type environment struct {
	UploadDir            string `env:"UPLOAD_DIR"`
	MaxFileBytes         string `env:"UPLOAD_MAX_FILE_BYTES"`
	MaxRequestBytes      string `env:"UPLOAD_MAX_REQUEST_BYTES"`
	AllowedMediaTypes    string `env:"UPLOAD_ALLOWED_MEDIA_TYPES"`
	QuotaBytes           string `env:"UPLOAD_QUOTA_BYTES"`
	QuotaCheckIntervalMS string `env:"QUOTA_CHECK_INTERVAL_MS"`
	TrashRetentionDays   string `env:"UPLOAD_TRASH_RETENTION_DAYS"`
	APIURL               string `env:"PLANNER_API_URL"`
	DBPath               string `env:"PLANNER_DB"`
	DBDriver             string `env:"PLANNER_DB_DRIVER"`
	DatabaseURL          string `env:"PLANNER_DATABASE_URL"`
	AdminToken           string `env:"PLANNER_ADMIN_TOKEN"`
	LogFormat            string `env:"PLANNER_LOG_FORMAT"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	setString := func(dst *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*dst = value
		}
	}
	setString(&c.APIURL, e.APIURL)
	setString(&c.DBPath, e.DBPath)
	setString(&c.DBDriver, e.DBDriver)
	setString(&c.DatabaseURL, e.DatabaseURL)
	setString(&c.LogFormat, e.LogFormat)
	setString(&c.Uploads.Dir, e.UploadDir)
	c.AdminToken = strings.TrimSpace(e.AdminToken)

	if raw := strings.TrimSpace(e.AllowedMediaTypes); raw != "" {
		c.Uploads.AllowedMediaTypes = splitCSV(raw)
	}

	sizes := []struct {
		key string
		raw string
		dst *ByteSize
	}{
		{"UPLOAD_MAX_FILE_BYTES", e.MaxFileBytes, &c.Uploads.MaxFileBytes},
		{"UPLOAD_MAX_REQUEST_BYTES", e.MaxRequestBytes, &c.Uploads.MaxRequestBytes},
		{"UPLOAD_QUOTA_BYTES", e.QuotaBytes, &c.Housekeeping.QuotaBytes},
	}
	for _, size := range sizes {
		if strings.TrimSpace(size.raw) == "" {
			continue
		}
		parsed, err := ParseByteSize(size.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", size.key, err)
		}
		*size.dst = parsed
	}

	if raw := strings.TrimSpace(e.QuotaCheckIntervalMS); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			return fmt.Errorf("QUOTA_CHECK_INTERVAL_MS must be a positive integer")
		}
		c.Housekeeping.CheckInterval = Duration{time.Duration(ms) * time.Millisecond}
	}
	if raw := strings.TrimSpace(e.TrashRetentionDays); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return fmt.Errorf("UPLOAD_TRASH_RETENTION_DAYS must be a positive integer")
		}
		c.Housekeeping.TrashRetentionDays = days
	}
	return nil
}
