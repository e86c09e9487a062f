package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
	"gradescan/api/internal/store"
)

const (
	cbSave    = "save"
	cbDiscard = "discard"
)

func makeSaveKeyboard() tgbotapi.InlineKeyboardMarkup {
	save := tgbotapi.NewInlineKeyboardButtonData("💾 Enregistrer", cbSave)
	discard := tgbotapi.NewInlineKeyboardButtonData("🗑 Ignorer", cbDiscard)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(save, discard))
}

func formatOutcome(out service.ScanOutcome) string {
	var b strings.Builder
	res := out.Result
	fmt.Fprintf(&b, "📋 Scan %s (%s, confiance %d%%)\n", res.Parsed.Mode, res.Source, int(res.Confidence*100+0.5))
	if res.RequiresManualCorrection {
		b.WriteString("⚠️ Lecture automatique impossible, saisie manuelle requise.\n")
	}
	if c := out.Record.DetectedClass; c != "" {
		b.WriteString("Classe: " + c + "\n")
	}

	for i, st := range out.Record.Students {
		name := strings.TrimSpace(st.Student.FullName)
		if name == "" {
			name = fmt.Sprintf("Élève %d", i+1)
		}
		b.WriteString("\n• " + name)
		if st.ClassName != "" && st.ClassName != out.Record.DetectedClass {
			b.WriteString(" (" + st.ClassName + ")")
		}
		b.WriteString("\n")
		for _, g := range st.Grades {
			subject := g.Subject
			if subject == "" {
				subject = "?"
			}
			if g.ScoreDefaulted {
				fmt.Fprintf(&b, "   %s: ?/%d\n", subject, g.Scale)
				continue
			}
			fmt.Fprintf(&b, "   %s: %g/%d\n", subject, g.Score, g.Scale)
		}
	}

	b.WriteString("\n" + out.Report + "\n")
	if n := out.Suggestions.Count(); n > 0 {
		fmt.Fprintf(&b, "\n💡 %d suggestion(s) non appliquée(s)\n", n)
	}
	return b.String()
}

func formatSummary(sum service.SaveSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Enregistré: %d élève(s), %d note(s)", sum.StudentsSaved+sum.StudentsLinked, sum.GradesSaved)
	if sum.StudentsLinked > 0 {
		fmt.Fprintf(&b, "\n🔗 %d élève(s) existant(s) réutilisé(s)", sum.StudentsLinked)
	}
	if sum.SubjectsCreated > 0 {
		fmt.Fprintf(&b, "\n📚 %d matière(s) créée(s)", sum.SubjectsCreated)
	}
	if sum.StudentsSkipped > 0 {
		fmt.Fprintf(&b, "\n⏭ %d élève(s) sans nom ignoré(s)", sum.StudentsSkipped)
	}
	if len(sum.Errors) > 0 {
		fmt.Fprintf(&b, "\n\n❌ ÉCHECS (%d):", len(sum.Errors))
		for _, e := range sum.Errors {
			b.WriteString("\n- " + e)
		}
	}
	return b.String()
}

func formatStatus(st scan.Status) string {
	var b strings.Builder
	if st.ModelAvailable {
		b.WriteString("✅ Modèle disponible")
		if st.Model != "" {
			b.WriteString(": " + st.Model)
		}
	} else {
		b.WriteString("⚠️ Modèle indisponible, saisie manuelle uniquement")
	}
	b.WriteString("\nDernière méthode: " + st.LastMethod)
	if st.LastSource != "" {
		b.WriteString(" (" + st.LastSource + ")")
	}
	if st.LastErrorKind != "" {
		b.WriteString("\nDernière erreur: " + string(st.LastErrorKind))
	}
	return b.String()
}

func formatHistory(list []store.ScanEntry) string {
	if len(list) == 0 {
		return "Aucun scan récent."
	}
	var b strings.Builder
	b.WriteString("🕘 Derniers scans:")
	for _, e := range list {
		mark := "✅"
		if !e.Success {
			mark = "❌"
		}
		fmt.Fprintf(&b, "\n%s %s %s, %d élève(s)", mark, e.CreatedAt.Format("02/01 15:04"), e.Mode, e.StudentsFound)
		if e.ErrorMessage != "" {
			b.WriteString(" - " + e.ErrorMessage)
		}
	}
	return b.String()
}
