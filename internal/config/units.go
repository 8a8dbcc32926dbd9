package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ByteSize is a byte count that decodes from an integer or a human string
// such as "25MiB" or "10 GB".
type ByteSize int64

// ParseByteSize parses an integer or human readable byte size.
func ParseByteSize(raw string) (ByteSize, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("byte size is required")
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("byte size must not be negative: %s", raw)
		}
		return ByteSize(n), nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", raw, err)
	}
	return ByteSize(n), nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (b *ByteSize) UnmarshalTOML(v any) error {
	switch value := v.(type) {
	case int64:
		if value < 0 {
			return fmt.Errorf("byte size must not be negative: %d", value)
		}
		*b = ByteSize(value)
		return nil
	case string:
		parsed, err := ParseByteSize(value)
		if err != nil {
			return err
		}
		*b = parsed
		return nil
	default:
		return fmt.Errorf("byte size must be an integer or string, got %T", v)
	}
}

func (b ByteSize) Int64() int64 { return int64(b) }

func (b ByteSize) String() string {
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	return humanize.IBytes(uint64(b))
}

// Duration decodes from a Go duration string ("24h") or an integer number
// of milliseconds.
type Duration struct {
	time.Duration
}

// ParseDuration parses a duration string or integer milliseconds.
func ParseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms < 0 {
			return Duration{}, fmt.Errorf("duration must not be negative: %s", raw)
		}
		return Duration{time.Duration(ms) * time.Millisecond}, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return Duration{}, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return Duration{}, fmt.Errorf("duration must not be negative: %s", raw)
	}
	return Duration{d}, nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v any) error {
	switch value := v.(type) {
	case int64:
		parsed, err := ParseDuration(strconv.FormatInt(value, 10))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDuration(value)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("duration must be a string or integer milliseconds, got %T", v)
	}
}
