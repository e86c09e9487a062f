package types

import (
	"encoding/json"
	"strings"
)

type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// ParseMode maps user input to a Mode; anything but "multi" is single.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeMulti)) {
		return ModeMulti
	}
	return ModeSingle
}

func (m Mode) IsMulti() bool { return m == ModeMulti }

type ExtractedStudent struct {
	FullName string `json:"fullName"`
}

type ExtractedGrade struct {
	Subject string  `json:"subject"`
	Score   float64 `json:"score"`
	Scale   int     `json:"scale"`
	// ScoreDefaulted is set when the source score was absent or not numeric
	// and Score was filled with 0.
	ScoreDefaulted bool `json:"scoreDefaulted,omitempty"`
}

type StudentEntry struct {
	Student   ExtractedStudent `json:"student"`
	ClassName string           `json:"className,omitempty"`
	Grades    []ExtractedGrade `json:"grades"`
}

// Empty reports whether nothing was read for this student.
func (e StudentEntry) Empty() bool {
	return strings.TrimSpace(e.Student.FullName) == "" && len(e.Grades) == 0
}

// ExtractionResult is the single-student wire shape.
type ExtractionResult struct {
	Student   ExtractedStudent `json:"student"`
	ClassName string           `json:"className"`
	Grades    []ExtractedGrade `json:"grades"`
}

// MultiExtractionResult is the multi-student wire shape.
type MultiExtractionResult struct {
	Students           []StudentEntry `json:"students"`
	DetectedClass      string         `json:"detectedClass,omitempty"`
	TotalStudentsFound int            `json:"totalStudentsFound"`
}

// Extraction is the canonical record every downstream stage works on.
// Single mode always carries exactly one entry in Students.
type Extraction struct {
	Mode               Mode
	Students           []StudentEntry
	DetectedClass      string
	TotalStudentsFound int
}

func NewSingle(r ExtractionResult) Extraction {
	grades := r.Grades
	if grades == nil {
		grades = []ExtractedGrade{}
	}
	return Extraction{
		Mode:               ModeSingle,
		Students:           []StudentEntry{{Student: r.Student, ClassName: r.ClassName, Grades: grades}},
		TotalStudentsFound: 1,
	}
}

func NewMulti(r MultiExtractionResult) Extraction {
	students := r.Students
	if students == nil {
		students = []StudentEntry{}
	}
	return Extraction{
		Mode:               ModeMulti,
		Students:           students,
		DetectedClass:      r.DetectedClass,
		TotalStudentsFound: r.TotalStudentsFound,
	}
}

// StudentsFound counts entries that carry a name or at least one grade.
func (e Extraction) StudentsFound() int {
	n := 0
	for _, s := range e.Students {
		if !s.Empty() {
			n++
		}
	}
	return n
}

func (e Extraction) Single() ExtractionResult {
	if len(e.Students) == 0 {
		return ExtractionResult{Grades: []ExtractedGrade{}, ClassName: e.DetectedClass}
	}
	s := e.Students[0]
	cls := s.ClassName
	if cls == "" {
		cls = e.DetectedClass
	}
	grades := s.Grades
	if grades == nil {
		grades = []ExtractedGrade{}
	}
	return ExtractionResult{Student: s.Student, ClassName: cls, Grades: grades}
}

func (e Extraction) Multi() MultiExtractionResult {
	students := e.Students
	if students == nil {
		students = []StudentEntry{}
	}
	return MultiExtractionResult{
		Students:           students,
		DetectedClass:      e.DetectedClass,
		TotalStudentsFound: e.TotalStudentsFound,
	}
}

// Subjects returns the distinct subject strings in first-seen order.
func (e Extraction) Subjects() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range e.Students {
		for _, g := range s.Grades {
			if g.Subject == "" {
				continue
			}
			if _, ok := seen[g.Subject]; ok {
				continue
			}
			seen[g.Subject] = struct{}{}
			out = append(out, g.Subject)
		}
	}
	return out
}

// MarshalJSON emits the wire shape of the record's mode with a "mode" tag.
func (e Extraction) MarshalJSON() ([]byte, error) {
	if e.Mode == ModeMulti {
		return json.Marshal(struct {
			Mode Mode `json:"mode"`
			MultiExtractionResult
		}{ModeMulti, e.Multi()})
	}
	return json.Marshal(struct {
		Mode Mode `json:"mode"`
		ExtractionResult
		DetectedClass string `json:"detectedClass,omitempty"`
	}{ModeSingle, e.Single(), e.DetectedClass})
}

// UnmarshalJSON reads back what MarshalJSON writes. Model output goes through
// the parse package instead, which tolerates malformed shapes.
func (e *Extraction) UnmarshalJSON(b []byte) error {
	var tag struct {
		Mode Mode `json:"mode"`
	}
	if err := json.Unmarshal(b, &tag); err != nil {
		return err
	}
	if tag.Mode == ModeMulti {
		var m MultiExtractionResult
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		*e = NewMulti(m)
		return nil
	}
	var s struct {
		ExtractionResult
		DetectedClass string `json:"detectedClass"`
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*e = NewSingle(s.ExtractionResult)
	e.DetectedClass = s.DetectedClass
	// className was filled from detectedClass on the way out
	if s.DetectedClass != "" && e.Students[0].ClassName == s.DetectedClass {
		e.Students[0].ClassName = ""
	}
	return nil
}
