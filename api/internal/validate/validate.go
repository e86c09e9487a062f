// Package validate is the last consistency check before a record is saved.
// Errors block the save, warnings never do.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/similarity"
)

const (
	errorPenalty   = 20
	warningPenalty = 5
	unknownName    = "Inconnu"
)

// Record is one student as validated: the parsed name, its class and grades.
type Record struct {
	FirstName string
	LastName  string
	ClassName string
	Grades    []types.ExtractedGrade
}

// RecordFrom parses the full name of e; class falls back to fallbackClass.
func RecordFrom(e types.StudentEntry, fallbackClass string) Record {
	n := similarity.ParseFullName(e.Student.FullName)
	cls := e.ClassName
	if strings.TrimSpace(cls) == "" {
		cls = fallbackClass
	}
	return Record{FirstName: n.FirstName, LastName: n.LastName, ClassName: cls, Grades: e.Grades}
}

func (r Record) name() string {
	first, last := r.FirstName, r.LastName
	if strings.TrimSpace(first) == "" {
		first = unknownName
	}
	if strings.TrimSpace(last) == "" {
		last = unknownName
	}
	return first + " " + last
}

type StudentResult struct {
	Index int    `json:"index"`
	Name  string `json:"studentName"`
	Result
}

type Result struct {
	IsValid  bool            `json:"isValid"`
	Errors   []string        `json:"errors"`
	Warnings []string        `json:"warnings"`
	Score    int             `json:"score"`
	Students []StudentResult `json:"studentValidations,omitempty"`
}

func newResult(errs, warns []string) Result {
	if errs == nil {
		errs = []string{}
	}
	if warns == nil {
		warns = []string{}
	}
	return Result{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
		Score:    score(len(errs), len(warns)),
	}
}

func score(errs, warns int) int {
	s := 100 - errorPenalty*errs - warningPenalty*warns
	return min(100, max(0, s))
}

// Extraction validates ext according to its mode.
func Extraction(ext types.Extraction) Result {
	if ext.Mode.IsMulti() {
		return Multi(ext)
	}
	var e types.StudentEntry
	if len(ext.Students) > 0 {
		e = ext.Students[0]
	}
	return Single(RecordFrom(e, ext.DetectedClass))
}

func Single(r Record) Result {
	var errs, warns []string

	checkName := func(v, missing, invalid string) {
		switch {
		case strings.TrimSpace(v) == "":
			errs = append(errs, missing)
		case !similarity.ValidName(v):
			errs = append(errs, invalid)
		}
	}
	checkName(r.FirstName, "Le prénom de l'élève est obligatoire", "Le prénom de l'élève n'est pas valide")
	checkName(r.LastName, "Le nom de l'élève est obligatoire", "Le nom de l'élève n'est pas valide")

	switch {
	case strings.TrimSpace(r.ClassName) == "":
		warns = append(warns, "Classe non spécifiée")
	case !similarity.ValidClassName(r.ClassName):
		warns = append(warns, "Le nom de la classe semble invalide")
	}

	if len(r.Grades) == 0 {
		warns = append(warns, "Aucune note trouvée pour l'élève")
	}
	for i, g := range r.Grades {
		e, w := grade(i, g)
		errs = append(errs, e...)
		warns = append(warns, w...)
	}
	return newResult(errs, warns)
}

func grade(i int, g types.ExtractedGrade) (errs, warns []string) {
	label := strings.TrimSpace(g.Subject)
	if label == "" {
		label = fmt.Sprintf("Note %d", i+1)
		errs = append(errs, label+": matière manquante")
	} else if len([]rune(label)) < 2 {
		warns = append(warns, label+": nom de matière très court")
	}

	scale := g.Scale
	if scale <= 0 {
		scale = 20
	}
	val := strconv.FormatFloat(g.Score, 'f', -1, 64)
	switch {
	case g.ScoreDefaulted:
		errs = append(errs, label+": valeur de note manquante ou illisible")
	case g.Score < 0:
		errs = append(errs, label+": note négative")
	case g.Score > float64(scale):
		errs = append(errs, fmt.Sprintf("%s: note supérieure à l'échelle (%s/%d)", label, val, scale))
	case g.Score == 0:
		warns = append(warns, label+": note de 0 détectée")
	}

	switch scale {
	case 5, 10, 20:
	default:
		warns = append(warns, fmt.Sprintf("%s: échelle inhabituelle (%d)", label, scale))
	}
	return errs, warns
}

func Multi(ext types.Extraction) Result {
	if len(ext.Students) == 0 {
		r := newResult([]string{"La liste des élèves est vide"}, nil)
		r.Score = 0
		return r
	}

	var errs, warns []string
	var students []StudentResult
	records := make([]Record, len(ext.Students))
	for i, e := range ext.Students {
		rec := RecordFrom(e, ext.DetectedClass)
		records[i] = rec
		res := Single(rec)
		students = append(students, StudentResult{Index: i, Name: rec.name(), Result: res})

		prefix := fmt.Sprintf("Élève %d: ", i+1)
		for _, m := range res.Errors {
			errs = append(errs, prefix+m)
		}
		for _, m := range res.Warnings {
			warns = append(warns, prefix+m)
		}
	}

	for _, group := range Duplicates(records) {
		names := make([]string, len(group))
		for k, idx := range group {
			names[k] = records[idx].name()
		}
		warns = append(warns, "Élèves potentiellement identiques: "+strings.Join(names, ", "))
	}

	if ext.DetectedClass != "" && !similarity.ValidClassName(ext.DetectedClass) {
		warns = append(warns, "La classe détectée semble invalide")
	}

	r := newResult(errs, warns)
	r.Students = students
	return r
}

// Duplicates groups indices of records whose names are similar. Each record
// belongs to at most one group; singletons are omitted.
func Duplicates(records []Record) [][]int {
	var groups [][]int
	done := make([]bool, len(records))
	for i := range records {
		if done[i] {
			continue
		}
		done[i] = true
		a := similarity.Name{FirstName: records[i].FirstName, LastName: records[i].LastName}
		group := []int{i}
		for j := i + 1; j < len(records); j++ {
			if done[j] {
				continue
			}
			b := similarity.Name{FirstName: records[j].FirstName, LastName: records[j].LastName}
			if similarity.NamesSimilar(a, b) {
				group = append(group, j)
				done[j] = true
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}
