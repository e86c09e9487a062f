package parse

import (
	"encoding/json"
	"fmt"
)

// Diagnostics describes how well a raw response matches the expected
// shapes. Data holds the decoded JSON value when decoding succeeded.
type Diagnostics struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Data     any      `json:"data"`
}

func (d *Diagnostics) errorf(format string, args ...any) {
	d.Errors = append(d.Errors, fmt.Sprintf(format, args...))
}

func (d *Diagnostics) warnf(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

// Inspect checks text without normalizing it. It never panics on malformed
// input: problems are reported in Errors and Success is false.
func Inspect(text string) Diagnostics {
	d := Diagnostics{Errors: []string{}, Warnings: []string{}}

	raw, err := Locate(text)
	if err != nil {
		d.errorf("Aucun JSON trouvé dans la réponse")
		return d
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		d.errorf("Erreur de parsing JSON: %v", err)
		return d
	}
	d.Data = data

	obj, ok := data.(map[string]any)
	if !ok {
		d.errorf("La réponse doit être un objet JSON")
		return d
	}

	student, hasStudent := obj["student"]
	students, hasStudents := obj["students"]
	if !hasStudent && !hasStudents {
		d.warnf("Aucune donnée élève dans la réponse")
	}

	if hasStudent {
		if fullName(student) == "" {
			d.warnf("Nom de l'élève manquant")
		}
		switch g := obj["grades"].(type) {
		case []any:
			if len(g) == 0 {
				d.warnf("Aucune note trouvée")
			}
		default:
			d.errorf("Grades manquants ou invalides")
		}
	}

	if hasStudents {
		list, ok := students.([]any)
		switch {
		case !ok:
			d.errorf("Students doit être un tableau")
		case len(list) == 0:
			d.warnf("Aucun élève trouvé")
		}
		for i, it := range list {
			n := i + 1
			entry, ok := it.(map[string]any)
			if !ok {
				d.errorf("Élève %d: entrée invalide", n)
				continue
			}
			if s, ok := entry["student"]; !ok {
				d.errorf("Élève %d: informations manquantes", n)
			} else if fullName(s) == "" {
				d.warnf("Élève %d: nom manquant", n)
			}
			if _, ok := entry["grades"].([]any); !ok {
				d.warnf("Élève %d: notes manquantes", n)
			}
		}
	}

	d.Success = len(d.Errors) == 0
	return d
}
