package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/similarity"
	"gradescan/api/internal/store"
	"gradescan/api/internal/util"
)

type SaveOptions struct {
	DefaultClass string `json:"defaultClass,omitempty"`
	// LinkExisting reuses a stored student of the same class whose name is
	// similar instead of creating a new one.
	LinkExisting bool `json:"linkExisting,omitempty"`
}

type SaveSummary struct {
	StudentsSaved   int      `json:"studentsSaved"`
	StudentsLinked  int      `json:"studentsLinked"`
	StudentsFailed  int      `json:"studentsFailed"`
	StudentsSkipped int      `json:"studentsSkipped"`
	GradesSaved     int      `json:"gradesSaved"`
	GradesFailed    int      `json:"gradesFailed"`
	SubjectsCreated int      `json:"subjectsCreated"`
	Errors          []string `json:"errors"`
}

func (s *SaveSummary) fail(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

type Saver struct {
	store store.Store
	log   zerolog.Logger
}

func NewSaver(st store.Store, log zerolog.Logger) *Saver {
	return &Saver{store: st, log: log}
}

// Save persists ext student by student, each student's grades after it.
// Item failures are counted and the batch goes on; nothing is rolled back.
func (s *Saver) Save(ctx context.Context, ext types.Extraction, opts SaveOptions) (SaveSummary, error) {
	sum := SaveSummary{Errors: []string{}}

	subjects, err := s.store.ListSubjects(ctx)
	if err != nil {
		return sum, fmt.Errorf("list subjects: %w", err)
	}
	var existing []store.Student
	if opts.LinkExisting {
		if existing, err = s.store.ListStudents(ctx); err != nil {
			return sum, fmt.Errorf("list students: %w", err)
		}
	}

	for i, entry := range ext.Students {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		full := util.CollapseSpaces(entry.Student.FullName)
		if full == "" {
			sum.StudentsSkipped++
			continue
		}
		class := firstNonEmpty(entry.ClassName, ext.DetectedClass, opts.DefaultClass)

		st, linked := linkStudent(existing, full, class, opts.LinkExisting)
		if linked {
			sum.StudentsLinked++
		} else {
			name := similarity.SplitForStorage(full)
			st, err = s.store.CreateStudent(ctx, store.Student{FirstName: name.FirstName, LastName: name.LastName, ClassName: class})
			if err != nil {
				sum.StudentsFailed++
				sum.fail("Élève %d (%s): %v", i+1, full, err)
				s.log.Error().Err(err).Str("student", full).Msg("create student")
				continue
			}
			sum.StudentsSaved++
			existing = append(existing, st)
		}

		for j, g := range entry.Grades {
			subject := strings.TrimSpace(g.Subject)
			scale := g.Scale
			if scale <= 0 {
				scale = 20
			}
			switch {
			case subject == "":
				sum.GradesFailed++
				sum.fail("Élève %d, note %d: matière manquante", i+1, j+1)
				continue
			case g.ScoreDefaulted:
				sum.GradesFailed++
				sum.fail("Élève %d, %s: note illisible", i+1, subject)
				continue
			case g.Score < 0 || g.Score > float64(scale):
				sum.GradesFailed++
				sum.fail("Élève %d, %s: note hors échelle (%g/%d)", i+1, subject, g.Score, scale)
				continue
			}

			sub, ok := lookupSubject(subjects, subject)
			if !ok {
				sub, err = s.store.CreateSubject(ctx, subject)
				if err != nil {
					sum.GradesFailed++
					sum.fail("Élève %d, %s: %v", i+1, subject, err)
					s.log.Error().Err(err).Str("subject", subject).Msg("create subject")
					continue
				}
				sum.SubjectsCreated++
				subjects = s.refreshSubjects(ctx, subjects, sub)
			}

			if _, err := s.store.CreateGrade(ctx, store.Grade{StudentID: st.ID, SubjectID: sub.ID, Score: g.Score, Scale: scale}); err != nil {
				sum.GradesFailed++
				sum.fail("Élève %d, %s: %v", i+1, subject, err)
				s.log.Error().Err(err).Int64("student_id", st.ID).Str("subject", subject).Msg("create grade")
				continue
			}
			sum.GradesSaved++
		}
	}

	s.log.Info().
		Int("students_saved", sum.StudentsSaved).
		Int("students_linked", sum.StudentsLinked).
		Int("students_failed", sum.StudentsFailed).
		Int("grades_saved", sum.GradesSaved).
		Int("grades_failed", sum.GradesFailed).
		Int("subjects_created", sum.SubjectsCreated).
		Msg("batch saved")
	return sum, nil
}

// refreshSubjects reloads the list after a creation; on failure the created
// subject is appended so later grades still see it.
func (s *Saver) refreshSubjects(ctx context.Context, cur []store.Subject, created store.Subject) []store.Subject {
	list, err := s.store.ListSubjects(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("refresh subjects")
		return append(cur, created)
	}
	if _, ok := lookupSubject(list, created.Name); !ok {
		list = append(list, created)
	}
	return list
}

func lookupSubject(list []store.Subject, name string) (store.Subject, bool) {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s.Name), name) {
			return s, true
		}
	}
	return store.Subject{}, false
}

func linkStudent(existing []store.Student, full, class string, enabled bool) (store.Student, bool) {
	if !enabled {
		return store.Student{}, false
	}
	parsed := similarity.ParseFullName(full)
	want := classKey(class)
	for _, st := range existing {
		if classKey(st.ClassName) != want {
			continue
		}
		if similarity.NamesSimilar(parsed, similarity.Name{FirstName: st.FirstName, LastName: st.LastName}) {
			return st, true
		}
	}
	return store.Student{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
