package util

import (
	"regexp"
	"strings"
)

var reFence = regexp.MustCompile("```(?:json)?[ \t]*")

// StripCodeFences removes every markdown fence in s, including ones in the
// middle of the text.
func StripCodeFences(s string) string {
	return strings.TrimSpace(reFence.ReplaceAllString(strings.TrimSpace(s), ""))
}

var reSpaces = regexp.MustCompile(`\s+`)

// CollapseSpaces trims and folds runs of whitespace into single spaces.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}
