package utils

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	shortIDPattern   = regexp.MustCompile("^[0-9a-fA-F]{8}$")
	unsafeNameChars  = regexp.MustCompile(`[\x00-\x1f/\\:*?"<>|]+`)
	allowedImageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}
)

// IsValidShortID checks that an id has the 8-hex-digit shape GenerateShortUUID produces
func IsValidShortID(id string) bool {
	return shortIDPattern.MatchString(id)
}

// GenerateShortUUID generates a short UUID (8 characters) for ids and file names
func GenerateShortUUID() string {
	fullUUID := uuid.New().String()
	// Take first 8 characters for a short but still unique identifier
	return strings.ReplaceAll(fullUUID[:8], "-", "")
}

// SanitizeFilename reduces a client-supplied upload name to a safe base name.
// Unicode letters are kept; path separators and control characters are not.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "_" {
		return "photo"
	}
	return name
}

// IsAllowedImage reports whether the file extension is one the upload form accepts
func IsAllowedImage(name string) bool {
	return allowedImageExts[strings.ToLower(filepath.Ext(name))]
}
