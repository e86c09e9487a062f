// Package suggest proposes corrections for an extracted record by comparing
// it with what is already stored.
package suggest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/similarity"
	"gradescan/api/internal/store"
	"gradescan/api/internal/util"
)

type Kind string

const (
	KindStudent     Kind = "student"
	KindNameParsing Kind = "name_parsing"
	KindSubject     Kind = "subject"
	KindClass       Kind = "class"
)

const (
	maxStudentSuggestions = 3
	maxSubjectSuggestions = 3
	maxClassSuggestions   = 2

	nameParsingConfidence = 0.7
	synonymConfidence     = 0.8

	// DefaultThreshold is the minimum confidence ApplyBest acts on.
	DefaultThreshold = 0.9
)

type StudentSuggestion struct {
	Kind       Kind            `json:"kind"`
	Name       similarity.Name `json:"name"`
	ClassName  string          `json:"className,omitempty"`
	StudentID  int64           `json:"studentId,omitempty"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason"`
}

type StudentGroup struct {
	Index       int                 `json:"index"`
	Original    string              `json:"original"`
	Suggestions []StudentSuggestion `json:"suggestions"`
}

type ValueSuggestion struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type ValueGroup struct {
	Original    string            `json:"original"`
	Suggestions []ValueSuggestion `json:"suggestions"`
}

type Bundle struct {
	Students []StudentGroup `json:"students"`
	Subjects []ValueGroup   `json:"subjects"`
	Classes  []ValueGroup   `json:"classes"`
	// Confidence is the mean over every suggestion, 0 when there is none.
	Confidence float64 `json:"confidence"`
}

func (b Bundle) Empty() bool {
	return len(b.Students) == 0 && len(b.Subjects) == 0 && len(b.Classes) == 0
}

// Count returns the number of individual suggestions.
func (b Bundle) Count() int {
	n := 0
	for _, g := range b.Students {
		n += len(g.Suggestions)
	}
	for _, g := range b.Subjects {
		n += len(g.Suggestions)
	}
	for _, g := range b.Classes {
		n += len(g.Suggestions)
	}
	return n
}

func (b Bundle) mean() float64 {
	var sum float64
	var n int
	for _, g := range b.Students {
		for _, s := range g.Suggestions {
			sum += s.Confidence
			n++
		}
	}
	for _, groups := range [][]ValueGroup{b.Subjects, b.Classes} {
		for _, g := range groups {
			for _, s := range g.Suggestions {
				sum += s.Confidence
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Store is the read side of the persistence layer the engine compares with.
type Store interface {
	ListStudents(ctx context.Context) ([]store.Student, error)
	ListSubjects(ctx context.Context) ([]store.Subject, error)
}

type Engine struct {
	store Store
	log   zerolog.Logger
}

func New(st Store, log zerolog.Logger) *Engine {
	return &Engine{store: st, log: log}
}

// Generate builds the suggestion bundle for ext.
func (e *Engine) Generate(ctx context.Context, ext types.Extraction) (Bundle, error) {
	students, err := e.store.ListStudents(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("list students: %w", err)
	}
	subjects, err := e.store.ListSubjects(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("list subjects: %w", err)
	}

	b := Bundle{
		Students: studentGroups(ext, students),
		Subjects: subjectGroups(ext, subjects),
		Classes:  classGroups(ext, students),
	}
	b.Confidence = b.mean()

	e.log.Debug().
		Int("students", len(b.Students)).
		Int("subjects", len(b.Subjects)).
		Int("classes", len(b.Classes)).
		Float64("confidence", b.Confidence).
		Msg("suggestions generated")
	return b, nil
}

func studentGroups(ext types.Extraction, existing []store.Student) []StudentGroup {
	out := []StudentGroup{}
	for i, entry := range ext.Students {
		full := util.CollapseSpaces(entry.Student.FullName)
		if full == "" {
			continue
		}
		if s := suggestStudent(full, existing); len(s) > 0 {
			out = append(out, StudentGroup{Index: i, Original: full, Suggestions: s})
		}
	}
	return out
}

func suggestStudent(full string, existing []store.Student) []StudentSuggestion {
	parsed := similarity.ParseFullName(full)
	var out []StudentSuggestion
	for _, st := range existing {
		name := similarity.Name{FirstName: st.FirstName, LastName: st.LastName}
		conf := similarity.NameConfidence(parsed, name)
		if conf == 0 || similarity.FormatFullName(name) == full {
			continue
		}
		out = append(out, StudentSuggestion{
			Kind:       KindStudent,
			Name:       name,
			ClassName:  st.ClassName,
			StudentID:  st.ID,
			Confidence: conf,
			Reason:     "Nom similaire trouvé dans la base de données",
		})
	}
	if formatted := similarity.FormatFullName(parsed); formatted != "" && formatted != full {
		out = append(out, StudentSuggestion{
			Kind:       KindNameParsing,
			Name:       parsed,
			Confidence: nameParsingConfidence,
			Reason:     "Format de nom standardisé",
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > maxStudentSuggestions {
		out = out[:maxStudentSuggestions]
	}
	return out
}

func subjectGroups(ext types.Extraction, existing []store.Subject) []ValueGroup {
	out := []ValueGroup{}
	for _, subject := range ext.Subjects() {
		if s := suggestSubject(subject, existing); len(s) > 0 {
			out = append(out, ValueGroup{Original: subject, Suggestions: s})
		}
	}
	return out
}

// suggestSubject returns nil when subject already exists as is.
func suggestSubject(subject string, existing []store.Subject) []ValueSuggestion {
	best := make(map[string]ValueSuggestion)
	var order []string
	add := func(s ValueSuggestion) {
		cur, ok := best[s.Value]
		if !ok {
			order = append(order, s.Value)
		}
		if !ok || s.Confidence > cur.Confidence {
			best[s.Value] = s
		}
	}

	for _, ex := range existing {
		conf, exact, ok := similarity.MatchScore(subject, ex.Name)
		if exact {
			return nil
		}
		if ok {
			add(ValueSuggestion{Value: ex.Name, Confidence: conf, Reason: subjectReason(conf)})
		}
	}
	if canon, ok := similarity.CanonicalSubject(subject); ok && similarity.NormalizeSubject(canon) != similarity.NormalizeSubject(subject) {
		if _, seen := best[canon]; !seen {
			add(ValueSuggestion{Value: canon, Confidence: synonymConfidence, Reason: "Matière standard suggérée"})
		}
	}
	return rank(best, order, maxSubjectSuggestions)
}

func subjectReason(conf float64) string {
	if conf == 0.9 {
		return "Matière similaire existante"
	}
	return fmt.Sprintf("Matière similaire (%d%% de similarité)", percent(conf))
}

func classGroups(ext types.Extraction, students []store.Student) []ValueGroup {
	var existing []string
	seen := make(map[string]struct{})
	for _, st := range students {
		c := strings.TrimSpace(st.ClassName)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		existing = append(existing, c)
	}

	out := []ValueGroup{}
	for _, class := range classNames(ext) {
		if s := suggestClass(class, existing); len(s) > 0 {
			out = append(out, ValueGroup{Original: class, Suggestions: s})
		}
	}
	return out
}

// classNames lists the distinct class strings of ext: detected class first,
// then per-student classes.
func classNames(ext types.Extraction) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(c string) {
		if strings.TrimSpace(c) == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	add(ext.DetectedClass)
	for _, s := range ext.Students {
		add(s.ClassName)
	}
	return out
}

func suggestClass(class string, existing []string) []ValueSuggestion {
	best := make(map[string]ValueSuggestion)
	var order []string
	for _, ex := range existing {
		conf, exact, ok := similarity.ClassMatchScore(class, ex)
		if exact {
			return nil
		}
		if !ok {
			continue
		}
		reason := "Classe similaire existante"
		if conf != 0.9 {
			reason = fmt.Sprintf("Classe similaire (%d%% de similarité)", percent(conf))
		}
		if cur, seen := best[ex]; !seen || conf > cur.Confidence {
			if !seen {
				order = append(order, ex)
			}
			best[ex] = ValueSuggestion{Value: ex, Confidence: conf, Reason: reason}
		}
	}
	return rank(best, order, maxClassSuggestions)
}

func rank(best map[string]ValueSuggestion, order []string, limit int) []ValueSuggestion {
	out := make([]ValueSuggestion, 0, len(order))
	for _, v := range order {
		out = append(out, best[v])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func percent(f float64) int { return int(math.Round(f * 100)) }
