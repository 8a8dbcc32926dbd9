package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7340"
	DefaultDBDriver   = "sqlite"
	DefaultDBFileName = ".planner.db"
	DefaultUploadDir  = "uploads"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	DefaultDotEnvFile = ".env"

	DefaultCheckInterval      = 24 * time.Hour
	DefaultTrashRetentionDays = 30

	configFileName           = ".planner.toml"
	configDirEnvKey          = "PLANNER_CONFIG_DIR"
	trustProjectConfigEnvKey = "PLANNER_TRUST_PROJECT_CONFIG"
)

const (
	DefaultMaxFileBytes    ByteSize = 25 << 20
	DefaultMaxRequestBytes ByteSize = 200 << 20
	DefaultQuotaBytes      ByteSize = 10 << 30
)

// UploadsConfig configures the storage root and upload limits.
type UploadsConfig struct {
	Dir               string   `toml:"dir"`
	MaxFileBytes      ByteSize `toml:"max_file_bytes"`
	MaxRequestBytes   ByteSize `toml:"max_request_bytes"`
	AllowedMediaTypes []string `toml:"allowed_media_types"`
}

// HousekeepingConfig configures the quota and trash sweeps.
type HousekeepingConfig struct {
	QuotaBytes         ByteSize `toml:"quota_bytes"`
	CheckInterval      Duration `toml:"check_interval"`
	TrashRetentionDays int      `toml:"trash_retention_days"`
}

// TrashRetention returns the retention window as a duration.
func (h HousekeepingConfig) TrashRetention() time.Duration {
	return time.Duration(h.TrashRetentionDays) * 24 * time.Hour
}

// Config defines runtime configuration for the planner.
type Config struct {
	APIURL                   string             `toml:"api_url"`
	DBDriver                 string             `toml:"db_driver"`
	DBPath                   string             `toml:"db_path"`
	DatabaseURL              string             `toml:"database_url"`
	LogLevel                 string             `toml:"log_level"`
	LogFormat                string             `toml:"log_format"`
	Uploads                  UploadsConfig      `toml:"uploads"`
	Housekeeping             HousekeepingConfig `toml:"housekeeping"`
	AdminToken               string             `toml:"-"`
	TrustedProjectConfigPath string             `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:    DefaultAPIURL,
		DBDriver:  DefaultDBDriver,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Uploads: UploadsConfig{
			MaxFileBytes:    DefaultMaxFileBytes,
			MaxRequestBytes: DefaultMaxRequestBytes,
		},
		Housekeeping: HousekeepingConfig{
			QuotaBytes:         DefaultQuotaBytes,
			CheckInterval:      Duration{DefaultCheckInterval},
			TrashRetentionDays: DefaultTrashRetentionDays,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_driver",
	"db_path",
	"database_url",
	"log_level",
	"log_format",
	"uploads.dir",
	"uploads.max_file_bytes",
	"uploads.max_request_bytes",
	"uploads.allowed_media_types",
	"housekeeping.quota_bytes",
	"housekeeping.check_interval",
	"housekeeping.trash_retention_days",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_driver":
		return c.DBDriver, nil
	case "db_path":
		return c.DBPath, nil
	case "database_url":
		return c.DatabaseURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "uploads.dir":
		return c.Uploads.Dir, nil
	case "uploads.max_file_bytes":
		return strconv.FormatInt(c.Uploads.MaxFileBytes.Int64(), 10), nil
	case "uploads.max_request_bytes":
		return strconv.FormatInt(c.Uploads.MaxRequestBytes.Int64(), 10), nil
	case "uploads.allowed_media_types":
		return strings.Join(c.Uploads.AllowedMediaTypes, ","), nil
	case "housekeeping.quota_bytes":
		return strconv.FormatInt(c.Housekeeping.QuotaBytes.Int64(), 10), nil
	case "housekeeping.check_interval":
		return c.Housekeeping.CheckInterval.String(), nil
	case "housekeeping.trash_retention_days":
		return strconv.Itoa(c.Housekeeping.TrashRetentionDays), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cwd, _ := os.Getwd()
	if cfg.DBPath == "" && cwd != "" {
		cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
	}
	if cfg.Uploads.Dir == "" && cwd != "" {
		cfg.Uploads.Dir = filepath.Join(cwd, DefaultUploadDir)
	}

	cfg.normalizeDefaults()

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_file_bytes", "uploads.max_request_bytes", "housekeeping.quota_bytes":
		parsed, err := ParseByteSize(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive byte size", key)
		}
		return parsed.Int64(), nil
	case "housekeeping.check_interval":
		parsed, err := ParseDuration(value)
		if err != nil || parsed.Duration <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration", key)
		}
		return parsed.String(), nil
	case "housekeeping.trash_retention_days":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "uploads.allowed_media_types":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = DefaultLogFormat
	}
	if strings.TrimSpace(c.DBDriver) == "" {
		c.DBDriver = DefaultDBDriver
	}
	if c.Uploads.MaxFileBytes <= 0 {
		c.Uploads.MaxFileBytes = DefaultMaxFileBytes
	}
	if c.Uploads.MaxRequestBytes <= 0 {
		c.Uploads.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if c.Uploads.MaxRequestBytes < c.Uploads.MaxFileBytes {
		c.Uploads.MaxRequestBytes = c.Uploads.MaxFileBytes
	}
	if c.Housekeeping.QuotaBytes <= 0 {
		c.Housekeeping.QuotaBytes = DefaultQuotaBytes
	}
	if c.Housekeeping.CheckInterval.Duration <= 0 {
		c.Housekeeping.CheckInterval = Duration{DefaultCheckInterval}
	}
	if c.Housekeeping.TrashRetentionDays <= 0 {
		c.Housekeeping.TrashRetentionDays = DefaultTrashRetentionDays
	}
	c.Uploads.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Uploads.AllowedMediaTypes)
}

// normalizeConfiguredMediaTypes lowercases, dedupes and sorts media types.
// Wildcard subtypes such as "image/*" are kept as written.
func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		normalized := raw
		if !strings.HasSuffix(raw, "/*") {
			parsed, _, err := mime.ParseMediaType(raw)
			if err != nil {
				continue
			}
			normalized = strings.TrimSpace(parsed)
		}
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
