package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "github.com/mattn/go-sqlite3"    // sqlite3 driver
)

// SQLStore implements Store and HistoryStore over database/sql. Queries use
// $n placeholders in ascending order so both drivers bind them positionally.
type SQLStore struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{DB: db, Dialect: dialect}
}

// Open connects, pings and runs migrations.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	d := Dialect(strings.TrimSpace(driver))
	switch d {
	case DialectPostgres, DialectSQLite:
	case "postgres", "":
		d = DialectPostgres
	case "sqlite":
		d = DialectSQLite
	default:
		return nil, fmt.Errorf("unsupported driver %q; use pgx|sqlite3", driver)
	}

	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if d == DialectSQLite {
		// one writer; an in-memory database also lives on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(time.Hour)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	s := NewSQLStore(db, d)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error { return s.DB.Close() }

func (s *SQLStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *SQLStore) ListStudents(ctx context.Context) ([]Student, error) {
	const q = `select id, first_name, last_name, class_name, created_at from students order by id`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Student{}
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.FirstName, &st.LastName, &st.ClassName, &st.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListSubjects(ctx context.Context) ([]Subject, error) {
	const q = `select id, name, created_at from subjects order by id`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Subject{}
	for rows.Next() {
		var sub Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListGrades(ctx context.Context) ([]Grade, error) {
	const q = `select id, student_id, subject_id, score, scale, created_at from grades order by id`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Grade{}
	for rows.Next() {
		var g Grade
		if err := rows.Scan(&g.ID, &g.StudentID, &g.SubjectID, &g.Score, &g.Scale, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateStudent(ctx context.Context, st Student) (Student, error) {
	st, err := checkStudent(st)
	if err != nil {
		return Student{}, err
	}
	st.CreatedAt = time.Now().UTC()
	const q = `insert into students (first_name, last_name, class_name, created_at)
values ($1,$2,$3,$4) returning id`
	if err := s.DB.QueryRowContext(ctx, q, st.FirstName, st.LastName, st.ClassName, st.CreatedAt).Scan(&st.ID); err != nil {
		return Student{}, fmt.Errorf("insert student: %w", err)
	}
	return st, nil
}

func (s *SQLStore) CreateSubject(ctx context.Context, name string) (Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Subject{}, fmt.Errorf("%w: empty name", ErrInvalidSubject)
	}
	// lower() in SQLite folds ASCII only, so the match is done here
	existing, err := s.ListSubjects(ctx)
	if err != nil {
		return Subject{}, err
	}
	if sub, ok := findSubject(existing, name); ok {
		return sub, nil
	}

	sub := Subject{Name: name, CreatedAt: time.Now().UTC()}
	const q = `insert into subjects (name, created_at) values ($1,$2) returning id`
	if err := s.DB.QueryRowContext(ctx, q, sub.Name, sub.CreatedAt).Scan(&sub.ID); err != nil {
		return Subject{}, fmt.Errorf("insert subject: %w", err)
	}
	return sub, nil
}

func (s *SQLStore) CreateGrade(ctx context.Context, g Grade) (Grade, error) {
	if err := checkGrade(g); err != nil {
		return Grade{}, err
	}
	g.CreatedAt = time.Now().UTC()
	const q = `insert into grades (student_id, subject_id, score, scale, created_at)
values ($1,$2,$3,$4,$5) returning id`
	if err := s.DB.QueryRowContext(ctx, q, g.StudentID, g.SubjectID, g.Score, g.Scale, g.CreatedAt).Scan(&g.ID); err != nil {
		return Grade{}, fmt.Errorf("insert grade: %w", err)
	}
	return g, nil
}
