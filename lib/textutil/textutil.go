package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases a natural key (vaccine or patient name) and
// collapses whitespace so scraped names match stored ones regardless of
// casing or padding in the legacy grid.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return name
}

func EqualNames(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

// CollapseSpaces trims and normalizes inner whitespace without
// lowercasing, for display fields.
func CollapseSpaces(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}
