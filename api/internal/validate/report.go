package validate

import (
	"fmt"
	"strings"
)

// Report renders r for people: status, score, numbered errors and warnings,
// then per-student scores when present.
func Report(r Result) string {
	var b strings.Builder
	if r.IsValid {
		b.WriteString("✅ Données valides\n")
	} else {
		b.WriteString("❌ Données invalides\n")
	}
	fmt.Fprintf(&b, "Score de validation: %d/100\n", r.Score)

	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s (%d):\n", title, len(items))
		for i, it := range items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, it)
		}
	}
	list("❌ ERREURS", r.Errors)
	list("⚠️ AVERTISSEMENTS", r.Warnings)

	if len(r.Students) > 0 {
		b.WriteString("\n📊 DÉTAIL PAR ÉLÈVE:\n")
		for _, s := range r.Students {
			fmt.Fprintf(&b, "• %s: %d/100\n", s.Name, s.Score)
		}
	}
	return b.String()
}
