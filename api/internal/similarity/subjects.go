package similarity

import (
	"strings"
)

const (
	substringConfidence = 0.9
	fuzzyThreshold      = 0.7
)

// subjectSynonyms maps folded abbreviations and spellings to the canonical
// subject name.
var subjectSynonyms = map[string]string{
	"math":                          "Mathématiques",
	"maths":                         "Mathématiques",
	"mathematique":                  "Mathématiques",
	"mathematiques":                 "Mathématiques",
	"fr":                            "Français",
	"francais":                      "Français",
	"ang":                           "Anglais",
	"anglais":                       "Anglais",
	"english":                       "Anglais",
	"esp":                           "Espagnol",
	"espagnol":                      "Espagnol",
	"all":                           "Allemand",
	"allemand":                      "Allemand",
	"hg":                            "Histoire-Géographie",
	"histoire geo":                  "Histoire-Géographie",
	"histoire-geo":                  "Histoire-Géographie",
	"histoire geographie":           "Histoire-Géographie",
	"histoire-geographie":           "Histoire-Géographie",
	"histoire":                      "Histoire",
	"geo":                           "Géographie",
	"geographie":                    "Géographie",
	"sciences":                      "Sciences",
	"svt":                           "SVT",
	"pc":                            "Physique-Chimie",
	"physique chimie":               "Physique-Chimie",
	"physique-chimie":               "Physique-Chimie",
	"physique":                      "Physique",
	"chimie":                        "Chimie",
	"eps":                           "EPS",
	"sport":                         "EPS",
	"musique":                       "Musique",
	"arts":                          "Arts Plastiques",
	"arts plastiques":               "Arts Plastiques",
	"techno":                        "Technologie",
	"technologie":                   "Technologie",
	"philo":                         "Philosophie",
	"philosophie":                   "Philosophie",
	"ses":                           "SES",
	"emc":                           "EMC",
	"education civique":             "EMC",
	"enseignement moral et civique": "EMC",
}

// CanonicalSubject looks s up in the synonym table.
func CanonicalSubject(s string) (string, bool) {
	c, ok := subjectSynonyms[subjectKey(s)]
	return c, ok
}

// MatchScore compares an extracted label with an existing one after
// normalization. exact is true when they are the same (no suggestion
// needed); otherwise ok reports a usable match with its confidence:
// containment scores 0.9, else the edit ratio when above 0.7.
func MatchScore(extracted, existing string) (confidence float64, exact, ok bool) {
	a, b := subjectKey(extracted), subjectKey(existing)
	if a == "" || b == "" {
		return 0, false, false
	}
	if a == b {
		return 1, true, false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return substringConfidence, false, true
	}
	if r := Ratio(a, b); r > fuzzyThreshold {
		return r, false, true
	}
	return 0, false, false
}
