package project

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultTitle is used when a project is created without a title.
const DefaultTitle = "Untitled Project"

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeTitle trims a title and collapses internal whitespace.
// Case is preserved. An empty result falls back to DefaultTitle.
func NormalizeTitle(s string) string {
	s = whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return DefaultTitle
	}
	return s
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}
