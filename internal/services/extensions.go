package services

import (
	"path/filepath"
	"strings"
)

// DefaultExtension is used when neither the MIME type nor the filename
// yields a suffix.
const DefaultExtension = ".bin"

var defaultExtensions = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/zip": ".zip",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
}

// ExtensionTable maps MIME types to file suffixes.
type ExtensionTable map[string]string

// NewExtensionTable returns the built-in table with overrides applied.
func NewExtensionTable(overrides map[string]string) ExtensionTable {
	t := make(ExtensionTable, len(defaultExtensions)+len(overrides))
	for k, v := range defaultExtensions {
		t[k] = v
	}
	for k, v := range overrides {
		t[normalizeMime(k)] = v
	}
	return t
}

// For derives the extension for a media item: the table entry for the
// MIME type wins, then the suffix of the original filename, then
// DefaultExtension.
func (t ExtensionTable) For(mimeType, filename string) string {
	if ext, ok := t[normalizeMime(mimeType)]; ok && ext != "" {
		return ext
	}
	if ext := strings.ToLower(filepath.Ext(filename)); validExtension(ext) {
		return ext
	}
	return DefaultExtension
}

func normalizeMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func validExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
