package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"gradescan/api/internal/util"
)

// Fold lowercases s and strips diacritics: "Français" -> "francais".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// lettersOnly keeps letters after folding; used for name comparison.
func lettersOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, Fold(s))
}

// NormalizeSubject trims, lowercases and collapses whitespace.
func NormalizeSubject(s string) string {
	return strings.ToLower(util.CollapseSpaces(norm.NFC.String(s)))
}

// subjectKey is NormalizeSubject with diacritics removed.
func subjectKey(s string) string {
	return Fold(util.CollapseSpaces(s))
}
