package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fullStore interface {
	Store
	HistoryStore
}

func stores(t *testing.T) map[string]fullStore {
	t.Helper()
	sqlStore, err := Open(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })
	return map[string]fullStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func TestStudents(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := s.CreateStudent(ctx, Student{FirstName: " Jean ", LastName: "Dupont", ClassName: "6ème A"})
			require.NoError(t, err)
			assert.NotZero(t, a.ID)
			assert.Equal(t, "Jean", a.FirstName)
			assert.Equal(t, "Jean Dupont", a.FullName())

			b, err := s.CreateStudent(ctx, Student{LastName: "Martin"})
			require.NoError(t, err)
			assert.NotEqual(t, a.ID, b.ID)

			_, err = s.CreateStudent(ctx, Student{FirstName: "  "})
			assert.ErrorIs(t, err, ErrInvalidStudent)

			list, err := s.ListStudents(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "Dupont", list[0].LastName)
			assert.Equal(t, "6ème A", list[0].ClassName)
		})
	}
}

func TestSubjects_CaseInsensitiveReuse(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := s.CreateSubject(ctx, "Éducation Musicale")
			require.NoError(t, err)

			again, err := s.CreateSubject(ctx, " éducation musicale ")
			require.NoError(t, err)
			assert.Equal(t, first.ID, again.ID)

			_, err = s.CreateSubject(ctx, "")
			assert.ErrorIs(t, err, ErrInvalidSubject)

			list, err := s.ListSubjects(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestGrades(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st, err := s.CreateStudent(ctx, Student{FirstName: "Jean", LastName: "Dupont"})
			require.NoError(t, err)
			sub, err := s.CreateSubject(ctx, "Maths")
			require.NoError(t, err)

			g, err := s.CreateGrade(ctx, Grade{StudentID: st.ID, SubjectID: sub.ID, Score: 15.5, Scale: 20})
			require.NoError(t, err)
			assert.NotZero(t, g.ID)

			for _, bad := range []Grade{
				{StudentID: st.ID, SubjectID: sub.ID, Score: 25, Scale: 20},
				{StudentID: st.ID, SubjectID: sub.ID, Score: -1, Scale: 20},
				{StudentID: st.ID, SubjectID: sub.ID, Score: 1, Scale: 0},
				{SubjectID: sub.ID, Score: 1, Scale: 20},
			} {
				_, err := s.CreateGrade(ctx, bad)
				assert.ErrorIs(t, err, ErrInvalidGrade)
			}

			list, err := s.ListGrades(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, 15.5, list[0].Score)
			assert.Equal(t, 20, list[0].Scale)
			assert.Equal(t, st.ID, list[0].StudentID)
		})
	}
}

func TestHistory(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
			for i := 0; i < HistoryLimit+5; i++ {
				_, err := s.AddScan(ctx, ScanEntry{
					CreatedAt:     base.Add(time.Duration(i) * time.Minute),
					Mode:          "single",
					Source:        "gemini",
					Success:       true,
					Confidence:    0.95,
					StudentsFound: i,
				})
				require.NoError(t, err)
			}

			all, err := s.ListScans(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, HistoryLimit)
			assert.Equal(t, HistoryLimit+4, all[0].StudentsFound, "newest first")
			assert.Equal(t, 5, all[len(all)-1].StudentsFound, "oldest entries purged")
			assert.NotEqual(t, uuid.Nil, all[0].ID)

			few, err := s.ListScans(ctx, 3)
			require.NoError(t, err)
			assert.Len(t, few, 3)

			failed, err := s.AddScan(ctx, ScanEntry{Mode: "multi", Source: "fallback-multi", ErrorMessage: "timeout"})
			require.NoError(t, err)
			assert.False(t, failed.CreatedAt.IsZero())

			require.NoError(t, s.ClearScans(ctx))
			all, err = s.ListScans(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestSQLStore_PurgeScans(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer s.Close()

	old := time.Now().UTC().Add(-48 * time.Hour)
	_, err = s.AddScan(ctx, ScanEntry{CreatedAt: old, Mode: "single", Source: "gemini", Success: true, ImageHash: "abc"})
	require.NoError(t, err)
	_, err = s.AddScan(ctx, ScanEntry{Mode: "single", Source: "fallback", Success: false, ImageHash: "abc"})
	require.NoError(t, err)

	n, err := s.PurgeScansOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.PurgeScansOlderThan(ctx, 0)
	assert.Error(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.Error(t, err)
}
