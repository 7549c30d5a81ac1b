// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"path/filepath"
	"sort"
	"strings"
)

// supportedExtensions lists the input formats the markitdown engine
// accepts. Keys include the leading dot.
var supportedExtensions = map[string]struct{}{
	".csv":  {},
	".docx": {},
	".htm":  {},
	".html": {},
	".jpeg": {},
	".jpg":  {},
	".json": {},
	".mp3":  {},
	".pdf":  {},
	".png":  {},
	".pptx": {},
	".txt":  {},
	".wav":  {},
	".xlsx": {},
	".xml":  {},
}

// SupportedExtension reports whether ext (with or without leading dot,
// any case) is a convertible format.
func SupportedExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	_, ok := supportedExtensions[ext]
	return ok
}

// SupportedPath reports whether the file name's final extension is a
// convertible format.
func SupportedPath(name string) bool {
	return SupportedExtension(filepath.Ext(name))
}

// SupportedExtensions returns the sorted list of convertible extensions.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
