package similarity

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"gradescan/api/internal/util"
)

type Name struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (n Name) Empty() bool {
	return strings.TrimSpace(n.FirstName) == "" && strings.TrimSpace(n.LastName) == ""
}

// nameSimilarityThreshold applies to first and last name independently.
const nameSimilarityThreshold = 0.8

var (
	reNameChars = regexp.MustCompile(`[^\p{L}\s'\-]`)
	reValidName = regexp.MustCompile(`^[\p{L}\s'\-]+$`)
)

// NormalizeName keeps letters, spaces, apostrophes and hyphens, collapses
// whitespace and title-cases each word.
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = reNameChars.ReplaceAllString(s, "")
	s = util.CollapseSpaces(s)
	if s == "" {
		return ""
	}
	// a Caser keeps state, so one per call
	return cases.Title(language.French).String(strings.ToLower(s))
}

// ValidName checks length (2..50 after normalization) and character set.
func ValidName(s string) bool {
	n := NormalizeName(s)
	l := utf8.RuneCountInString(n)
	if l < 2 || l > 50 {
		return false
	}
	return reValidName.MatchString(strings.TrimSpace(s))
}

func isUpperWord(w string) bool {
	hasLetter := false
	for _, r := range w {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter && utf8.RuneCountInString(w) >= 2
}

// ParseFullName splits a raw full name. Recognized layouts:
//
//	"DUPONT Jean"      -> Jean / Dupont
//	"Jean DUPONT"      -> Jean / Dupont
//	"Dupont, Jean"     -> Jean / Dupont
//	"Jean Paul Dupont" -> Jean Paul / Dupont
//
// Both parts come back normalized.
func ParseFullName(full string) Name {
	full = util.CollapseSpaces(full)
	if full == "" {
		return Name{}
	}
	if last, first, ok := strings.Cut(full, ","); ok {
		return Name{FirstName: NormalizeName(first), LastName: NormalizeName(last)}
	}

	words := strings.Fields(full)
	if len(words) == 1 {
		if isUpperWord(words[0]) {
			return Name{LastName: NormalizeName(words[0])}
		}
		return Name{FirstName: NormalizeName(words[0])}
	}

	// leading uppercase words: "DE LA FONTAINE Jean"
	lead := 0
	for lead < len(words) && isUpperWord(words[lead]) {
		lead++
	}
	if lead > 0 && lead < len(words) {
		return Name{
			FirstName: NormalizeName(strings.Join(words[lead:], " ")),
			LastName:  NormalizeName(strings.Join(words[:lead], " ")),
		}
	}

	// trailing uppercase words: "Jean DUPONT"
	tail := len(words)
	for tail > 0 && isUpperWord(words[tail-1]) {
		tail--
	}
	if tail > 0 && tail < len(words) {
		return Name{
			FirstName: NormalizeName(strings.Join(words[:tail], " ")),
			LastName:  NormalizeName(strings.Join(words[tail:], " ")),
		}
	}

	return Name{
		FirstName: NormalizeName(strings.Join(words[:len(words)-1], " ")),
		LastName:  NormalizeName(words[len(words)-1]),
	}
}

// SplitForStorage splits like the save path does: the last token is the last
// name, everything before it the first name. No case inference.
func SplitForStorage(full string) Name {
	words := strings.Fields(full)
	switch len(words) {
	case 0:
		return Name{}
	case 1:
		return Name{LastName: words[0]}
	}
	return Name{
		FirstName: strings.Join(words[:len(words)-1], " "),
		LastName:  words[len(words)-1],
	}
}

// FormatFullName renders "First Last".
func FormatFullName(n Name) string {
	return util.CollapseSpaces(n.FirstName + " " + n.LastName)
}

// NamesSimilar reports whether x and y probably name the same person: exact
// match after normalization, first/last swapped, or both parts above 0.8
// similarity. Two empty names are never similar.
func NamesSimilar(x, y Name) bool {
	return NameConfidence(x, y) > 0
}

// NameConfidence scores a NamesSimilar match: 1 for exact or swapped
// matches, the mean part similarity otherwise, 0 when not similar.
func NameConfidence(x, y Name) float64 {
	f1, l1 := lettersOnly(x.FirstName), lettersOnly(x.LastName)
	f2, l2 := lettersOnly(y.FirstName), lettersOnly(y.LastName)
	if f1+l1 == "" || f2+l2 == "" {
		return 0
	}
	if f1 == f2 && l1 == l2 {
		return 1
	}
	if f1 == l2 && l1 == f2 {
		return 1
	}
	best := 0.0
	for _, pair := range [][4]string{{f1, f2, l1, l2}, {f1, l2, l1, f2}} {
		rf, rl := Ratio(pair[0], pair[1]), Ratio(pair[2], pair[3])
		if rf > nameSimilarityThreshold && rl > nameSimilarityThreshold {
			best = max(best, (rf+rl)/2)
		}
	}
	return best
}
