// Package similarity holds the string-distance and normalization primitives
// used to reconcile extracted names, subjects and classes with stored ones.
package similarity

import (
	"unicode/utf8"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var unitCosts = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Distance is the Levenshtein edit distance between a and b, computed on
// runes over the full strings.
func Distance(a, b string) int {
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), unitCosts)
}

// Ratio maps the edit distance to [0,1]: 1 means identical.
func Ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(Distance(a, b))/float64(longest)
}
