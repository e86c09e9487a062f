package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps everything in process. Used by tests and when no
// database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	students []Student
	subjects []Subject
	grades   []Grade
	scans    []ScanEntry
	nextID   int64
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) ListStudents(context.Context) ([]Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Student{}, m.students...), nil
}

func (m *MemoryStore) ListSubjects(context.Context) ([]Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Subject{}, m.subjects...), nil
}

func (m *MemoryStore) ListGrades(context.Context) ([]Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Grade{}, m.grades...), nil
}

func (m *MemoryStore) CreateStudent(_ context.Context, s Student) (Student, error) {
	s, err := checkStudent(s)
	if err != nil {
		return Student{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	s.CreatedAt = time.Now().UTC()
	m.students = append(m.students, s)
	return s, nil
}

func (m *MemoryStore) CreateSubject(_ context.Context, name string) (Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Subject{}, fmt.Errorf("%w: empty name", ErrInvalidSubject)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := findSubject(m.subjects, name); ok {
		return sub, nil
	}
	sub := Subject{ID: m.id(), Name: name, CreatedAt: time.Now().UTC()}
	m.subjects = append(m.subjects, sub)
	return sub, nil
}

func (m *MemoryStore) CreateGrade(_ context.Context, g Grade) (Grade, error) {
	if err := checkGrade(g); err != nil {
		return Grade{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = m.id()
	g.CreatedAt = time.Now().UTC()
	m.grades = append(m.grades, g)
	return g, nil
}

func (m *MemoryStore) AddScan(_ context.Context, e ScanEntry) (ScanEntry, error) {
	e = newEntry(e)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans = append([]ScanEntry{e}, m.scans...)
	sort.SliceStable(m.scans, func(i, j int) bool {
		return m.scans[i].CreatedAt.After(m.scans[j].CreatedAt)
	})
	if len(m.scans) > HistoryLimit {
		m.scans = m.scans[:HistoryLimit]
	}
	return e, nil
}

func (m *MemoryStore) ListScans(_ context.Context, limit int) ([]ScanEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.scans)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]ScanEntry{}, m.scans[:n]...), nil
}

func (m *MemoryStore) ClearScans(context.Context) error {
	m.mu.Lock()
	m.scans = nil
	m.mu.Unlock()
	return nil
}
