package constants

import "strings"

// AllowedExtensions holds the file extensions accepted for ingestion.
// Datasheets arrive as PDFs; anything else is skipped by the watcher.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
