package screenshot

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var illegalFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// SanitizeFilename makes s safe to use as a file name component
func SanitizeFilename(s string) string {
	sanitized := illegalFilenameChars.ReplaceAllString(strings.TrimSpace(s), "_")
	sanitized = strings.ReplaceAll(sanitized, " ", "_")

	// Limit length in runes, names are often Cyrillic
	if runes := []rune(sanitized); len(runes) > 100 {
		sanitized = string(runes[:100])
	}
	return sanitized
}

// writeFile writes a capture, creating the parent directory if it vanished
func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
