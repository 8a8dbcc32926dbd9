package server

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"planner/internal/models"
)

const dateLayout = "2006-01-02"

func normalizeStatus(value string) (string, error) {
	status, err := models.ParseTaskStatus(value)
	if err != nil {
		return "", badRequestCode(err, ErrCodeInvalidStatus)
	}
	return string(status), nil
}

func normalizePriority(value string) (string, error) {
	priority, err := models.ParseTaskPriority(value)
	if err != nil {
		return "", badRequestCode(err, ErrCodeInvalidPriority)
	}
	return string(priority), nil
}

func normalizeDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return "", badRequestCode(fmt.Errorf("date must be YYYY-MM-DD"), ErrCodeInvalidDate)
	}
	return value, nil
}

// normalizeMediaType strips parameters and lowercases a media type. Values
// that do not parse yield "".
func normalizeMediaType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed)
}

// mediaTypeAllowed matches mediaType against an allow-list whose entries may
// be "type/*" wildcards. An empty list allows everything.
func mediaTypeAllowed(allowed []string, mediaType string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, entry := range allowed {
		if entry == mediaType {
			return true
		}
		if prefix, ok := strings.CutSuffix(entry, "/*"); ok && strings.HasPrefix(mediaType, prefix+"/") {
			return true
		}
	}
	return false
}
