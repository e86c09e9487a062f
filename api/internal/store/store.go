// Package store persists students, subjects, grades and the scan history.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidStudent = errors.New("invalid student")
	ErrInvalidSubject = errors.New("invalid subject")
	ErrInvalidGrade   = errors.New("invalid grade")
)

// HistoryLimit caps the number of scan history entries kept.
const HistoryLimit = 50

type Student struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	ClassName string    `json:"className"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

type Subject struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Grade struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"studentId"`
	SubjectID int64     `json:"subjectId"`
	Score     float64   `json:"score"`
	Scale     int       `json:"scale"`
	CreatedAt time.Time `json:"createdAt"`
}

// ScanEntry is one line of the scan history.
type ScanEntry struct {
	ID            uuid.UUID `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Mode          string    `json:"mode"`
	Source        string    `json:"source"`
	Success       bool      `json:"success"`
	Confidence    float64   `json:"confidence"`
	StudentsFound int       `json:"studentsFound"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	ImageHash     string    `json:"imageHash,omitempty"`
}

// Store is the records collaborator. Create* return the stored record with
// its assigned ID.
type Store interface {
	ListStudents(ctx context.Context) ([]Student, error)
	ListSubjects(ctx context.Context) ([]Subject, error)
	ListGrades(ctx context.Context) ([]Grade, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	// CreateSubject returns the existing subject when one matches name
	// case-insensitively.
	CreateSubject(ctx context.Context, name string) (Subject, error)
	CreateGrade(ctx context.Context, g Grade) (Grade, error)
	Ping(ctx context.Context) error
}

type HistoryStore interface {
	AddScan(ctx context.Context, e ScanEntry) (ScanEntry, error)
	// ListScans returns the newest entries first; limit <= 0 means all.
	ListScans(ctx context.Context, limit int) ([]ScanEntry, error)
	ClearScans(ctx context.Context) error
}

func checkStudent(s Student) (Student, error) {
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.ClassName = strings.TrimSpace(s.ClassName)
	if s.FirstName == "" && s.LastName == "" {
		return s, fmt.Errorf("%w: empty name", ErrInvalidStudent)
	}
	return s, nil
}

func checkGrade(g Grade) error {
	if g.StudentID <= 0 || g.SubjectID <= 0 {
		return fmt.Errorf("%w: missing student or subject", ErrInvalidGrade)
	}
	if g.Scale <= 0 {
		return fmt.Errorf("%w: scale %d", ErrInvalidGrade, g.Scale)
	}
	if g.Score < 0 || g.Score > float64(g.Scale) {
		return fmt.Errorf("%w: score %g out of [0, %d]", ErrInvalidGrade, g.Score, g.Scale)
	}
	return nil
}

func findSubject(list []Subject, name string) (Subject, bool) {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s.Name), name) {
			return s, true
		}
	}
	return Subject{}, false
}

func newEntry(e ScanEntry) ScanEntry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}
