package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold removes accents: "Ñandú" becomes "Nandu".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// SearchKey lowercases, trims and folds s for prefix matching.
func SearchKey(s string) string {
	return Fold(strings.ToLower(strings.TrimSpace(s)))
}
