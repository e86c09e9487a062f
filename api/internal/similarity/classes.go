package similarity

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"gradescan/api/internal/util"
)

var reClassChars = regexp.MustCompile(`[^\p{L}\p{N}_\s\-]`)

// NormalizeClassName trims, collapses spaces, drops punctuation other than
// hyphens and uppercases: " 6ème  a. " -> "6ÈME A".
func NormalizeClassName(s string) string {
	s = reClassChars.ReplaceAllString(s, "")
	return strings.ToUpper(util.CollapseSpaces(s))
}

func ValidClassName(s string) bool {
	n := NormalizeClassName(s)
	l := utf8.RuneCountInString(n)
	return l >= 1 && l <= 20
}

// ClassMatchScore is MatchScore over normalized class names.
func ClassMatchScore(extracted, existing string) (confidence float64, exact, ok bool) {
	return MatchScore(NormalizeClassName(extracted), NormalizeClassName(existing))
}

var classPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)classe\s*:?\s*([\p{L}\p{N}][\p{L}\p{N}\- ]{0,9}?)\s*(?:\n|$|,|;)`),
	regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(\d{1,2}\s?(?:ème|eme|e|è|ÈME|EME)(?:\s?[A-Z])?)(?:$|[^\p{L}\p{N}])`),
	regexp.MustCompile(`(?:^|[^\p{L}\p{N}])((?:CP|CE1|CE2|CM1|CM2)(?:\s?[A-Z])?)(?:$|[^\p{L}\p{N}])`),
	regexp.MustCompile(`(?:^|[^\p{L}])((?:Seconde|Première|Premiere|Terminale|SECONDE|PREMIÈRE|TERMINALE)(?:\s[A-Z]{1,4})?)(?:$|[^\p{L}])`),
}

// DetectClass finds a class label such as "6ème A", "CM2" or "Terminale S"
// in free text. Returns "" when none is found.
func DetectClass(text string) string {
	for _, re := range classPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if c := NormalizeClassName(m[1]); c != "" {
				return c
			}
		}
	}
	return ""
}
