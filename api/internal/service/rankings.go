package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gradescan/api/internal/similarity"
	"gradescan/api/internal/store"
)

type RankingStore interface {
	ListStudents(ctx context.Context) ([]store.Student, error)
	ListGrades(ctx context.Context) ([]store.Grade, error)
}

type Ranking struct {
	Rank      int     `json:"rank"`
	StudentID int64   `json:"studentId"`
	Name      string  `json:"name"`
	ClassName string  `json:"className"`
	Average   float64 `json:"average"`
	Grades    int     `json:"gradesCount"`
}

// Rankings orders the students of className (all when empty) by their
// average normalized to /20, one decimal. Students without grades rank at 0.
func Rankings(ctx context.Context, st RankingStore, className string) ([]Ranking, error) {
	students, err := st.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	grades, err := st.ListGrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}

	type acc struct {
		score, scale float64
		n            int
	}
	byStudent := make(map[int64]*acc)
	for _, g := range grades {
		if g.Scale <= 0 {
			continue
		}
		a := byStudent[g.StudentID]
		if a == nil {
			a = &acc{}
			byStudent[g.StudentID] = a
		}
		a.score += g.Score
		a.scale += float64(g.Scale)
		a.n++
	}

	want := classKey(className)
	out := []Ranking{}
	for _, s := range students {
		if want != "" && classKey(s.ClassName) != want {
			continue
		}
		r := Ranking{StudentID: s.ID, Name: s.FullName(), ClassName: s.ClassName}
		if a := byStudent[s.ID]; a != nil && a.scale > 0 {
			r.Average = math.Round(a.score/a.scale*20*10) / 10
			r.Grades = a.n
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Average != out[j].Average {
			return out[i].Average > out[j].Average
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// classKey compares class names ignoring case, accents and punctuation.
func classKey(s string) string {
	return similarity.Fold(similarity.NormalizeClassName(s))
}
