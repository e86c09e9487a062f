package suggest

import (
	"errors"
	"fmt"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/similarity"
)

var (
	ErrUnknownKind  = errors.New("unknown suggestion kind")
	ErrBadSelection = errors.New("invalid suggestion selection")
)

// ApplyBest rewrites every occurrence of a subject or class whose top
// suggestion reaches threshold. Student identities are never auto-applied.
// threshold <= 0 means DefaultThreshold. ext is left untouched.
func ApplyBest(ext types.Extraction, b Bundle, threshold float64) types.Extraction {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	out := ext
	for _, g := range b.Subjects {
		if len(g.Suggestions) == 0 || g.Suggestions[0].Confidence < threshold {
			continue
		}
		out = replaceSubject(out, g.Original, g.Suggestions[0].Value, nil)
	}
	for _, g := range b.Classes {
		if len(g.Suggestions) == 0 || g.Suggestions[0].Confidence < threshold {
			continue
		}
		out = replaceClass(out, g.Original, g.Suggestions[0].Value, nil)
	}
	return out
}

type StudentPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	ClassName string `json:"className,omitempty"`
}

// Selection is one suggestion picked by a user.
type Selection struct {
	Kind     Kind            `json:"kind" validate:"required,oneof=student name_parsing subject class"`
	Original string          `json:"original"`
	Value    string          `json:"value"`
	Student  *StudentPayload `json:"student,omitempty"`
	// StudentIndex restricts the change to one entry.
	StudentIndex *int `json:"studentIndex,omitempty"`
}

// Apply performs one manual selection on a copy of ext.
func Apply(ext types.Extraction, sel Selection) (types.Extraction, error) {
	if sel.StudentIndex != nil && (*sel.StudentIndex < 0 || *sel.StudentIndex >= len(ext.Students)) {
		return ext, fmt.Errorf("%w: student index %d out of range", ErrBadSelection, *sel.StudentIndex)
	}

	switch sel.Kind {
	case KindSubject:
		if sel.Original == "" || sel.Value == "" {
			return ext, fmt.Errorf("%w: subject needs original and value", ErrBadSelection)
		}
		return replaceSubject(ext, sel.Original, sel.Value, sel.StudentIndex), nil
	case KindClass:
		if sel.Original == "" || sel.Value == "" {
			return ext, fmt.Errorf("%w: class needs original and value", ErrBadSelection)
		}
		return replaceClass(ext, sel.Original, sel.Value, sel.StudentIndex), nil
	case KindStudent, KindNameParsing:
		return applyStudent(ext, sel)
	}
	return ext, fmt.Errorf("%w: %q", ErrUnknownKind, sel.Kind)
}

func applyStudent(ext types.Extraction, sel Selection) (types.Extraction, error) {
	if sel.Student == nil {
		return ext, fmt.Errorf("%w: student payload missing", ErrBadSelection)
	}
	full := similarity.FormatFullName(similarity.Name{FirstName: sel.Student.FirstName, LastName: sel.Student.LastName})
	if full == "" {
		return ext, fmt.Errorf("%w: empty student name", ErrBadSelection)
	}
	idx := 0
	if sel.StudentIndex != nil {
		idx = *sel.StudentIndex
	}
	if idx >= len(ext.Students) {
		return ext, fmt.Errorf("%w: no student to update", ErrBadSelection)
	}

	students := cloneStudents(ext.Students)
	students[idx].Student.FullName = full
	if students[idx].ClassName == "" && sel.Student.ClassName != "" {
		students[idx].ClassName = sel.Student.ClassName
	}
	ext.Students = students
	return ext, nil
}

// replaceSubject copies only the grade slices it changes.
func replaceSubject(ext types.Extraction, from, to string, only *int) types.Extraction {
	var students []types.StudentEntry
	for i, s := range ext.Students {
		if only != nil && *only != i {
			continue
		}
		var grades []types.ExtractedGrade
		for j, g := range s.Grades {
			if g.Subject != from {
				continue
			}
			if grades == nil {
				grades = append([]types.ExtractedGrade(nil), s.Grades...)
			}
			grades[j].Subject = to
		}
		if grades == nil {
			continue
		}
		if students == nil {
			students = cloneStudents(ext.Students)
		}
		students[i].Grades = grades
	}
	if students != nil {
		ext.Students = students
	}
	return ext
}

func replaceClass(ext types.Extraction, from, to string, only *int) types.Extraction {
	if only == nil && ext.DetectedClass == from {
		ext.DetectedClass = to
	}
	var students []types.StudentEntry
	for i, s := range ext.Students {
		if (only != nil && *only != i) || s.ClassName != from {
			continue
		}
		if students == nil {
			students = cloneStudents(ext.Students)
		}
		students[i].ClassName = to
	}
	if students != nil {
		ext.Students = students
	}
	return ext
}

// cloneStudents copies the entry slice; grade slices stay shared until
// written.
func cloneStudents(in []types.StudentEntry) []types.StudentEntry {
	return append([]types.StudentEntry(nil), in...)
}
