package store

import (
	"context"
	"fmt"
)

type Dialect string

const (
	DialectPostgres Dialect = "pgx"
	DialectSQLite   Dialect = "sqlite3"
)

var postgresSchema = []string{
	`create table if not exists students (
  id bigserial primary key,
  first_name text not null,
  last_name text not null,
  class_name text not null default '',
  created_at timestamptz not null default now()
)`,
	`create table if not exists subjects (
  id bigserial primary key,
  name text not null,
  created_at timestamptz not null default now()
)`,
	`create table if not exists grades (
  id bigserial primary key,
  student_id bigint not null references students(id) on delete cascade,
  subject_id bigint not null references subjects(id) on delete cascade,
  score double precision not null,
  scale integer not null,
  created_at timestamptz not null default now()
)`,
	`create table if not exists scan_history (
  id uuid primary key,
  created_at timestamptz not null,
  mode text not null,
  source text not null,
  success boolean not null,
  confidence double precision not null,
  students_found integer not null,
  error_message text not null default '',
  image_hash text not null default ''
)`,
	`create index if not exists scan_history_created_at_idx on scan_history (created_at desc)`,
}

var sqliteSchema = []string{
	`create table if not exists students (
  id integer primary key autoincrement,
  first_name text not null,
  last_name text not null,
  class_name text not null default '',
  created_at timestamp not null
)`,
	`create table if not exists subjects (
  id integer primary key autoincrement,
  name text not null,
  created_at timestamp not null
)`,
	`create table if not exists grades (
  id integer primary key autoincrement,
  student_id integer not null references students(id) on delete cascade,
  subject_id integer not null references subjects(id) on delete cascade,
  score real not null,
  scale integer not null,
  created_at timestamp not null
)`,
	`create table if not exists scan_history (
  id text primary key,
  created_at timestamp not null,
  mode text not null,
  source text not null,
  success boolean not null,
  confidence real not null,
  students_found integer not null,
  error_message text not null default '',
  image_hash text not null default ''
)`,
	`create index if not exists scan_history_created_at_idx on scan_history (created_at desc)`,
}

// Migrate creates the tables when they are missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.Dialect == DialectSQLite {
		stmts = sqliteSchema
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
