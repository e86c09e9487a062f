// Package parse turns raw model output into a canonical extraction record.
// Structured JSON is tried first; when no usable object can be located or
// decoded the heuristic text parser takes over.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/util"
)

type Method string

const (
	MethodJSON      Method = "json"
	MethodHeuristic Method = "heuristic"
)

var ErrNoJSON = errors.New("no JSON object found")

// Parse extracts a record from model text. A JSON failure is never returned:
// it routes to Heuristic. The only error is the heuristic's internal failure,
// which the caller must treat as a failed scan.
func Parse(text string, mode types.Mode) (types.Extraction, Method, error) {
	ext, err := parseJSON(text, mode)
	if err == nil {
		return ext, MethodJSON, nil
	}
	ext, herr := Heuristic(text, mode)
	if herr != nil {
		return types.Extraction{}, MethodHeuristic, fmt.Errorf("heuristic after %v: %w", err, herr)
	}
	return ext, MethodHeuristic, nil
}

func parseJSON(text string, mode types.Mode) (types.Extraction, error) {
	raw, err := Locate(text)
	if err != nil {
		return types.Extraction{}, err
	}
	return Decode(raw, mode)
}

// Locate strips code fences and returns the first top-level JSON object in
// text. Balanced objects that are valid JSON win, tried from each '{' in
// turn; otherwise the slice between the first '{' and the last '}' is
// returned as is.
func Locate(text string) ([]byte, error) {
	s := strings.TrimSpace(util.StripCodeFences(text))
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := balancedEnd(s, i)
		if end < 0 {
			// a truncated object keeps the slice fallback; a stray prose
			// brace does not hide a later object
			if opensKey(s, i) {
				break
			}
			continue
		}
		if cand := s[i : end+1]; json.Valid([]byte(cand)) {
			return []byte(cand), nil
		}
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return nil, ErrNoJSON
	}
	return []byte(s[start : end+1]), nil
}

// opensKey reports whether the '{' at i is followed by a quoted key.
func opensKey(s string, i int) bool {
	rest := strings.TrimLeft(s[i+1:], " \t\r\n")
	return strings.HasPrefix(rest, `"`)
}

// balancedEnd returns the index of the '}' closing the object opened at
// start, honouring string literals, or -1.
func balancedEnd(s string, start int) int {
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
