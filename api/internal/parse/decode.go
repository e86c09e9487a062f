package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gradescan/api/internal/ocr/types"
)

const defaultScale = 20

var errNotObject = errors.New("top-level JSON value is not an object")

// Decode normalizes every accepted payload layout into one Extraction:
//
//	{"student": {...}, "className": "...", "grades": [...]}
//	{"students": [{"student": {...}, "grades": [...]}], "detectedClass": "...", "totalStudentsFound": n}
//
// An optional "mode" tag picks the layout when mode is empty. Single mode
// reads the first entry of "students" when "student" is absent; multi mode
// wraps a lone "student" into a one-element list.
func Decode(raw []byte, mode types.Mode) (types.Extraction, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return types.Extraction{}, fmt.Errorf("decode: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return types.Extraction{}, errNotObject
	}
	if mode == "" {
		mode = inferMode(obj)
	}
	if mode.IsMulti() {
		return decodeMulti(obj), nil
	}
	return decodeSingle(obj), nil
}

func inferMode(obj map[string]any) types.Mode {
	if tag := asString(obj["mode"]); tag != "" {
		return types.ParseMode(tag)
	}
	if _, ok := obj["students"]; ok {
		return types.ModeMulti
	}
	return types.ModeSingle
}

func decodeSingle(obj map[string]any) types.Extraction {
	if _, ok := obj["student"]; !ok {
		if list, ok := obj["students"].([]any); ok {
			for _, it := range list {
				if m, ok := it.(map[string]any); ok {
					e := decodeEntry(m)
					if e.ClassName == "" {
						e.ClassName = asString(obj["detectedClass"])
					}
					return types.NewSingle(types.ExtractionResult{
						Student: e.Student, ClassName: e.ClassName, Grades: e.Grades,
					})
				}
			}
		}
	}
	e := decodeEntry(obj)
	return types.NewSingle(types.ExtractionResult{
		Student:   e.Student,
		ClassName: e.ClassName,
		Grades:    e.Grades,
	})
}

func decodeMulti(obj map[string]any) types.Extraction {
	students := []types.StudentEntry{}
	switch list := obj["students"].(type) {
	case []any:
		for _, it := range list {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			students = append(students, decodeEntry(m))
		}
	default:
		if _, ok := obj["student"]; ok {
			students = append(students, decodeEntry(obj))
		}
	}

	detected := asString(obj["detectedClass"])
	if detected == "" {
		detected = asString(obj["className"])
	}
	total, ok := asInt(obj["totalStudentsFound"])
	if !ok || total <= 0 {
		total = len(students)
	}
	return types.NewMulti(types.MultiExtractionResult{
		Students:           students,
		DetectedClass:      detected,
		TotalStudentsFound: total,
	})
}

func decodeEntry(m map[string]any) types.StudentEntry {
	return types.StudentEntry{
		Student:   types.ExtractedStudent{FullName: fullName(m["student"])},
		ClassName: asString(m["className"]),
		Grades:    decodeGrades(m["grades"]),
	}
}

// fullName reads {"fullName": ...}, falling back to firstName/lastName
// pairs; a bare string is taken as the full name.
func fullName(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case map[string]any:
		if n := asString(s["fullName"]); n != "" {
			return n
		}
		return strings.TrimSpace(asString(s["firstName"]) + " " + asString(s["lastName"]))
	}
	return ""
}

func decodeGrades(v any) []types.ExtractedGrade {
	out := []types.ExtractedGrade{}
	list, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range list {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		subject := asString(m["subject"])
		if subject == "" {
			continue
		}
		g := types.ExtractedGrade{Subject: subject, Scale: defaultScale}
		if score, ok := asFloat(m["score"]); ok {
			g.Score = score
		} else {
			g.ScoreDefaulted = true
		}
		if scale, ok := asInt(m["scale"]); ok && scale != 0 {
			g.Scale = scale
		}
		out = append(out, g)
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

var reLeadingNumber = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)`)

// asFloat accepts numbers and numeric strings. Strings may use a decimal
// comma and carry trailing text ("8,5", "15/20"), like a lenient parseFloat.
func asFloat(v any) (float64, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.ReplaceAll(strings.TrimSpace(t), ",", ".")
		s = reLeadingNumber.FindString(s)
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
