package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/util"
)

const (
	windowBefore   = 100
	windowAfter    = 200
	defaultSubject = "Matière"
)

const (
	upperWord = `\p{Lu}[\p{Lu}'\-]+`
	titleWord = `\p{Lu}\p{Ll}+(?:[\-']\p{Lu}\p{Ll}+)?`
	scorePart = `(\d{1,2}(?:[.,]\d{1,2})?)[ \t]*(?:/|sur)[ \t]*(\d{1,3})`
)

var (
	reLabelledName = regexp.MustCompile(`(?i:nom|name|élève|eleve|étudiant|etudiant|student)[ \t]*:?[ \t]*(\p{Lu}[\p{L}'\-]*[ \t]+\p{Lu}[\p{L}'\-]*)`)
	reUpperFirst   = regexp.MustCompile(`(?m)(?:^|[^\p{L}])(` + upperWord + `[ \t]+` + titleWord + `)`)
	reTitleFirst   = regexp.MustCompile(`(?m)(?:^|[^\p{L}])(` + titleWord + `[ \t]+` + upperWord + `)(?:$|[^\p{L}])`)
	reLineStartUp  = regexp.MustCompile(`(?m)^[ \t]*(` + upperWord + `[ \t]+` + titleWord + `)`)

	reLabelFirst = regexp.MustCompile(`(\p{L}[\p{L}'\- \t]*?)[ \t]*:?[ \t]*` + scorePart)
	reScoreFirst = regexp.MustCompile(scorePart + `[ \t]+(\p{L}[\p{L}'\- \t]*)`)
	reBareScore  = regexp.MustCompile(scorePart)
)

// Heuristic scans free text for names and "label: score/scale" expressions.
// It returns an error only on an internal failure.
func Heuristic(text string, mode types.Mode) (ext types.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("heuristic parse: %v", r)
		}
	}()
	if mode.IsMulti() {
		return heuristicMulti(text), nil
	}
	return heuristicSingle(text), nil
}

func heuristicSingle(text string) types.Extraction {
	name := ""
	for _, re := range []*regexp.Regexp{reLabelledName, reUpperFirst, reTitleFirst} {
		if m := re.FindStringSubmatch(text); m != nil {
			name = util.CollapseSpaces(m[1])
			break
		}
	}

	grades := []types.ExtractedGrade{}
	for _, g := range findGrades(text, false) {
		if g.Subject != "" && g.Score > 0 {
			grades = append(grades, g)
		}
	}
	return types.NewSingle(types.ExtractionResult{
		Student: types.ExtractedStudent{FullName: name},
		Grades:  grades,
	})
}

func heuristicMulti(text string) types.Extraction {
	seen := make(map[string]struct{})
	students := []types.StudentEntry{}
	runes := []rune(text)

	for _, re := range []*regexp.Regexp{reLineStartUp, reTitleFirst} {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			name := util.CollapseSpaces(text[loc[2]:loc[3]])
			if _, dup := seen[name]; dup || len([]rune(name)) <= 3 || !strings.Contains(name, " ") {
				continue
			}
			seen[name] = struct{}{}

			pos := len([]rune(text[:loc[2]]))
			from, to := max(0, pos-windowBefore), min(len(runes), pos+windowAfter)
			window := string(runes[from:to])

			grades := []types.ExtractedGrade{}
			for _, g := range findGrades(window, true) {
				if g.Score > 0 && g.Score <= float64(g.Scale) {
					grades = append(grades, g)
				}
			}
			students = append(students, types.StudentEntry{
				Student: types.ExtractedStudent{FullName: name},
				Grades:  grades,
			})
		}
	}
	return types.NewMulti(types.MultiExtractionResult{
		Students:           students,
		TotalStudentsFound: len(students),
	})
}

// findGrades runs the labelled pattern first, then the score-first (single)
// or bare-score (multi) pattern on the text the first one did not claim.
func findGrades(text string, multi bool) []types.ExtractedGrade {
	var out []types.ExtractedGrade
	var claimed [][2]int

	for _, m := range reLabelFirst.FindAllStringSubmatchIndex(text, -1) {
		claimed = append(claimed, [2]int{m[0], m[1]})
		out = append(out, newGrade(text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]]))
	}

	second := reScoreFirst
	if multi {
		second = reBareScore
	}
	for _, m := range second.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(claimed, m[0], m[1]) {
			continue
		}
		subject := defaultSubject
		if !multi {
			subject = text[m[6]:m[7]]
		}
		out = append(out, newGrade(subject, text[m[2]:m[3]], text[m[4]:m[5]]))
	}
	return out
}

func newGrade(subject, score, scale string) types.ExtractedGrade {
	g := types.ExtractedGrade{Subject: util.CollapseSpaces(subject), Scale: defaultScale}
	if f, err := strconv.ParseFloat(strings.Replace(score, ",", ".", 1), 64); err == nil {
		g.Score = f
	}
	if n, err := strconv.Atoi(scale); err == nil && n != 0 {
		g.Scale = n
	}
	return g
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}
