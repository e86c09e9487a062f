package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/service"
	"gradescan/api/internal/store"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	headColor = color.New(color.Bold)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(w io.Writer, ext types.Extraction) {
	if ext.DetectedClass != "" {
		fmt.Fprintf(w, "Classe: %s\n", ext.DetectedClass)
	}
	for i, st := range ext.Students {
		name := strings.TrimSpace(st.Student.FullName)
		if name == "" {
			name = fmt.Sprintf("Élève %d", i+1)
		}
		headColor.Fprintf(w, "• %s", name)
		if st.ClassName != "" {
			fmt.Fprintf(w, " (%s)", st.ClassName)
		}
		fmt.Fprintln(w)
		for _, g := range st.Grades {
			if g.ScoreDefaulted {
				warnColor.Fprintf(w, "    %-24s ?/%d\n", g.Subject, g.Scale)
				continue
			}
			fmt.Fprintf(w, "    %-24s %g/%d\n", g.Subject, g.Score, g.Scale)
		}
	}
}

func printOutcome(w io.Writer, out service.ScanOutcome) {
	res := out.Result
	c := okColor
	if res.IsFallback() {
		c = warnColor
	}
	c.Fprintf(w, "Source: %s  confiance: %.0f%%", res.Source, res.Confidence*100)
	if out.Cached {
		fmt.Fprint(w, "  (cache)")
	}
	fmt.Fprintln(w)
	if res.Error != "" {
		errColor.Fprintf(w, "Erreur modèle: %s\n", res.Error)
	}
	printRecord(w, out.Record)
	fmt.Fprintln(w)
	fmt.Fprintln(w, out.Report)
	if n := out.Suggestions.Count(); n > 0 {
		warnColor.Fprintf(w, "\n%d suggestion(s) non appliquée(s)\n", n)
	}
}

func printSummary(w io.Writer, sum service.SaveSummary) {
	okColor.Fprintf(w, "Enregistré: %d élève(s) (%d existant(s)), %d note(s), %d matière(s) créée(s)\n",
		sum.StudentsSaved+sum.StudentsLinked, sum.StudentsLinked, sum.GradesSaved, sum.SubjectsCreated)
	for _, e := range sum.Errors {
		errColor.Fprintf(w, "  ✗ %s\n", e)
	}
}

func printHistory(w io.Writer, list []store.ScanEntry) {
	if len(list) == 0 {
		fmt.Fprintln(w, "Aucun scan.")
		return
	}
	for _, e := range list {
		mark, c := "✓", okColor
		if !e.Success {
			mark, c = "✗", errColor
		}
		c.Fprint(w, mark)
		fmt.Fprintf(w, " %s  %-6s %-18s %3.0f%%  %d élève(s)", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Mode, e.Source, e.Confidence*100, e.StudentsFound)
		if e.ErrorMessage != "" {
			fmt.Fprintf(w, "  %s", e.ErrorMessage)
		}
		fmt.Fprintln(w)
	}
}

func printRankings(w io.Writer, list []service.Ranking) {
	if len(list) == 0 {
		fmt.Fprintln(w, "Aucun élève.")
		return
	}
	for _, r := range list {
		fmt.Fprintf(w, "%3d. %-28s %-8s %5.1f/20  (%d note(s))\n", r.Rank, r.Name, r.ClassName, r.Average, r.Grades)
	}
}
