package memory

import (
	"strings"
	"unicode/utf8"
)

// DefaultSummaryLength is the summary cap used for context entries.
const DefaultSummaryLength = 150

// Summarize shortens content to at most maxLength runes.
//
// Short content is returned unchanged. Otherwise the first sentence is used
// when it fits, falling back to a hard cut with an ellipsis. Content that
// opens with a period has an empty first sentence and summarizes to ".".
func Summarize(content string, maxLength int) string {
	if utf8.RuneCountInString(content) <= maxLength {
		return content
	}

	first, _, _ := strings.Cut(content, ".")
	first = strings.TrimSpace(first)
	if utf8.RuneCountInString(first) <= maxLength {
		if !strings.HasSuffix(first, ".") {
			first += "."
		}
		return first
	}

	cut := maxLength - 3
	if cut < 0 {
		cut = 0
	}
	return string([]rune(content)[:cut]) + "..."
}
