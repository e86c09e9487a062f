package store

import (
	"context"
	"errors"
	"time"
)

// AddScan records a scan and trims the history to the newest HistoryLimit
// entries.
func (s *SQLStore) AddScan(ctx context.Context, e ScanEntry) (ScanEntry, error) {
	e = newEntry(e)
	const q = `
insert into scan_history (
  id, created_at, mode, source, success,
  confidence, students_found, error_message, image_hash
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err := s.DB.ExecContext(ctx, q,
		e.ID, e.CreatedAt, e.Mode, e.Source, e.Success,
		e.Confidence, e.StudentsFound, e.ErrorMessage, e.ImageHash,
	); err != nil {
		return ScanEntry{}, err
	}

	const trim = `
delete from scan_history
where id not in (select id from scan_history order by created_at desc limit $1)`
	if _, err := s.DB.ExecContext(ctx, trim, HistoryLimit); err != nil {
		return ScanEntry{}, err
	}
	return e, nil
}

func (s *SQLStore) ListScans(ctx context.Context, limit int) ([]ScanEntry, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	const q = `
select id, created_at, mode, source, success,
       confidence, students_found, error_message, image_hash
from scan_history
order by created_at desc
limit $1`
	rows, err := s.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ScanEntry{}
	for rows.Next() {
		var e ScanEntry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Mode, &e.Source, &e.Success,
			&e.Confidence, &e.StudentsFound, &e.ErrorMessage, &e.ImageHash); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) ClearScans(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `delete from scan_history`)
	return err
}

// PurgeScansOlderThan deletes entries older than the given age.
func (s *SQLStore) PurgeScansOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.DB.ExecContext(ctx, `delete from scan_history where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
