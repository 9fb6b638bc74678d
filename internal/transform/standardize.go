package transform

import (
	"strings"
	"unicode"
)

// Standardize normalizes a free-text dimension value: leading/trailing
// whitespace is stripped, internal runs of whitespace collapse to a single
// space, and each word is title-cased. Empty input passes through unchanged.
// The function is pure and idempotent.
func Standardize(value string) string {
	if value == "" {
		return value
	}

	words := strings.Fields(value)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}

	return strings.Join(words, " ")
}
