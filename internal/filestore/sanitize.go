package filestore

import (
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	maxNameLen  = 120
	defaultName = "file"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeName reduces a client supplied file name to a safe base name.
// Characters outside [A-Za-z0-9._-] become "_" and leading dots are
// stripped. When the name carries no extension one is derived from
// mediaType.
func SanitizeName(name, mediaType string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		base = defaultName
	}

	ext := path.Ext(base)
	if ext == "" {
		ext = ExtensionFor(mediaType)
		base += ext
	}
	if len(base) > maxNameLen {
		if len(ext) >= maxNameLen/2 {
			ext = ""
		}
		base = base[:maxNameLen-len(ext)] + ext
	}
	return base
}

// ExtensionFor returns the canonical extension of a media type, or "".
func ExtensionFor(mediaType string) string {
	mediaType = strings.TrimSpace(strings.SplitN(mediaType, ";", 2)[0])
	if mediaType == "" {
		return ""
	}
	if m := mimetype.Lookup(strings.ToLower(mediaType)); m != nil {
		return m.Extension()
	}
	return ""
}
