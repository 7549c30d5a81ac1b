// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/docmark/pkg/types"
)

// ExtractMetadata derives document metadata from converted Markdown. The
// title is the first ATX heading; when the document has none, the display
// name stem is used. Heading markers are not words: "# Title" counts the
// same words as "Title".
func ExtractMetadata(markdown, displayName string) types.DocumentMetadata {
	return types.DocumentMetadata{
		Title:     extractTitle(markdown, displayName),
		WordCount: countWords(markdown),
		CharCount: utf8.RuneCountInString(markdown),
	}
}

func countWords(markdown string) int {
	total := 0
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			trimmed = strings.TrimLeft(trimmed, "#")
		}
		total += len(strings.Fields(trimmed))
	}
	return total
}

func extractTitle(markdown, displayName string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		if title != "" {
			return title
		}
	}
	base := filepath.Base(displayName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
