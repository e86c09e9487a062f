package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradescan/api/internal/cache"
	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/scan"
	"gradescan/api/internal/store"
	"gradescan/api/internal/suggest"
)

type fakeExtractor struct {
	res   types.ScanResult
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context, scan.Image, types.Mode) (types.ScanResult, error) {
	f.calls++
	return f.res, f.err
}

func gemini(ext types.Extraction, text string) types.ScanResult {
	return types.ScanResult{Success: true, Text: text, Parsed: ext, Source: types.SourceGemini, Confidence: 0.95, ParseMethod: "json"}
}

func newPipeline(t *testing.T, ex Extractor, st *store.MemoryStore, c cache.Client) *Pipeline {
	t.Helper()
	return NewPipeline(ex, suggest.New(st, zerolog.Nop()), st, c, PipelineOptions{}, zerolog.Nop())
}

func TestPipeline_AutoAppliesAndCaches(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_, err := st.CreateSubject(ctx, "Mathématiques")
	require.NoError(t, err)

	ext := types.NewSingle(types.ExtractionResult{
		Student: types.ExtractedStudent{FullName: "Jean Dupont"},
		Grades:  []types.ExtractedGrade{{Subject: "math", Score: 15, Scale: 20}, {Subject: "  Arts   plastiques ", Score: 12, Scale: 20}},
	})
	ex := &fakeExtractor{res: gemini(ext, `{"student":{"fullName":"Jean Dupont"}} Classe: 6ème A`)}
	p := newPipeline(t, ex, st, cache.NewMemoryClient(10))

	req := ScanRequest{Image: scan.Image{Data: []byte("img")}, Mode: types.ModeSingle}
	out, err := p.Scan(ctx, req)
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, "Mathématiques", out.Record.Students[0].Grades[0].Subject)
	assert.Equal(t, "Arts plastiques", out.Record.Students[0].Grades[1].Subject)
	assert.Equal(t, "6ÈME A", out.Record.DetectedClass)
	assert.Equal(t, "math", ext.Students[0].Grades[0].Subject)
	assert.True(t, out.Validation.IsValid)
	assert.NotEmpty(t, out.Report)
	assert.Equal(t, cache.ImageHash([]byte("img")), out.ImageHash)

	hist, err := st.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Success)
	assert.Equal(t, types.SourceGemini, hist[0].Source)
	assert.Equal(t, 1, hist[0].StudentsFound)

	again, err := p.Scan(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, "Mathématiques", again.Record.Students[0].Grades[0].Subject)

	_, err = p.Scan(ctx, ScanRequest{Image: scan.Image{Data: []byte("img")}, Mode: types.ModeMulti})
	require.NoError(t, err)
	assert.Equal(t, 2, ex.calls, "mode is part of the cache key")
}

func TestPipeline_CacheHitReviewsAgain(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ext := types.NewSingle(types.ExtractionResult{
		Student: types.ExtractedStudent{FullName: "Jean Dupont"},
		Grades:  []types.ExtractedGrade{{Subject: "math", Score: 15, Scale: 20}},
	})
	ex := &fakeExtractor{res: gemini(ext, `{"student":{"fullName":"Jean Dupont"}}`)}
	p := newPipeline(t, ex, st, cache.NewMemoryClient(10))
	img := scan.Image{Data: []byte("img")}

	first, err := p.Scan(ctx, ScanRequest{Image: img, ClassName: "6A"})
	require.NoError(t, err)
	assert.Equal(t, "6A", first.Record.DetectedClass)
	assert.Equal(t, "math", first.Record.Students[0].Grades[0].Subject)

	_, err = st.CreateSubject(ctx, "Mathématiques")
	require.NoError(t, err)

	second, err := p.Scan(ctx, ScanRequest{Image: img, ClassName: "5B"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, "5B", second.Record.DetectedClass)
	assert.Equal(t, "Mathématiques", second.Record.Students[0].Grades[0].Subject)
	assert.NotEmpty(t, second.Suggestions.Subjects)
	assert.Equal(t, cache.ImageHash([]byte("img")), second.ImageHash)

	hist, err := st.ListScans(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, hist, 1, "cache hits add no history")
}

func TestPipeline_RequestedClass(t *testing.T) {
	ext := types.NewSingle(types.ExtractionResult{Student: types.ExtractedStudent{FullName: "Jean Dupont"}})
	p := newPipeline(t, &fakeExtractor{res: gemini(ext, "Classe: 5e B")}, store.NewMemoryStore(), nil)
	out, err := p.Scan(context.Background(), ScanRequest{Image: scan.Image{Data: []byte("x")}, ClassName: "4e C"})
	require.NoError(t, err)
	assert.Equal(t, "4e C", out.Record.DetectedClass)
}

func TestPipeline_StubIsRecordedAsFailure(t *testing.T) {
	ctx := context.Background()
	stub, err := scan.ManualStub(types.ModeMulti, errors.New("timeout"))
	require.NoError(t, err)
	st := store.NewMemoryStore()
	c := cache.NewMemoryClient(10)
	ex := &fakeExtractor{res: stub}
	p := newPipeline(t, ex, st, c)

	out, err := p.Scan(ctx, ScanRequest{Image: scan.Image{Data: []byte("img")}, Mode: types.ModeMulti})
	require.NoError(t, err)
	assert.True(t, out.Result.IsFallback())

	hist, err := st.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].Success)
	assert.Equal(t, "timeout", hist[0].ErrorMessage)

	_, err = c.Get(ctx, cache.ScanKey(out.ImageHash, "multi"))
	assert.ErrorIs(t, err, cache.ErrCacheMiss, "stubs are not cached")
}

func TestPipeline_ExtractError(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newPipeline(t, &fakeExtractor{err: scan.ErrExhausted}, st, nil)

	_, err := p.Scan(ctx, ScanRequest{Image: scan.Image{Data: []byte("img")}})
	assert.ErrorIs(t, err, scan.ErrExhausted)

	hist, _ := st.ListScans(ctx, 0)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].Success)
	assert.Contains(t, hist[0].ErrorMessage, "all extraction methods failed")

	_, err = p.Scan(ctx, ScanRequest{})
	assert.ErrorIs(t, err, scan.ErrEmptyImage)
}

func TestSaver_Save(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ext := types.NewMulti(types.MultiExtractionResult{
		DetectedClass: "6ème A",
		Students: []types.StudentEntry{
			{Student: types.ExtractedStudent{FullName: "Jean Paul Dupont"}, Grades: []types.ExtractedGrade{
				{Subject: "Maths", Score: 15, Scale: 20},
				{Subject: "Histoire", Score: 25, Scale: 20},
				{Subject: " ", Score: 10, Scale: 20},
			}},
			{Student: types.ExtractedStudent{FullName: "  "}},
			{Student: types.ExtractedStudent{FullName: "Marie Curie"}, ClassName: "5e B", Grades: []types.ExtractedGrade{
				{Subject: "maths", Score: 18, Scale: 20},
				{Subject: "Physique", Scale: 20, ScoreDefaulted: true},
			}},
		},
	})

	sum, err := NewSaver(st, zerolog.Nop()).Save(ctx, ext, SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.StudentsSaved)
	assert.Equal(t, 1, sum.StudentsSkipped)
	assert.Equal(t, 0, sum.StudentsFailed)
	assert.Equal(t, 2, sum.GradesSaved)
	assert.Equal(t, 3, sum.GradesFailed)
	assert.Equal(t, 1, sum.SubjectsCreated, "maths reuses Maths")
	assert.Len(t, sum.Errors, 3)

	students, _ := st.ListStudents(ctx)
	require.Len(t, students, 2)
	assert.Equal(t, "Jean Paul", students[0].FirstName)
	assert.Equal(t, "Dupont", students[0].LastName)
	assert.Equal(t, "6ème A", students[0].ClassName)
	assert.Equal(t, "5e B", students[1].ClassName)
}

// flakyStore fails chosen calls of the wrapped store.
type flakyStore struct {
	*store.MemoryStore
	failStudent     int
	failGrade       int
	failListSubject int
	failSubject     string

	students, grades, lists int
}

func (f *flakyStore) CreateStudent(ctx context.Context, s store.Student) (store.Student, error) {
	f.students++
	if f.students == f.failStudent {
		return store.Student{}, errors.New("insert student: connection reset")
	}
	return f.MemoryStore.CreateStudent(ctx, s)
}

func (f *flakyStore) CreateGrade(ctx context.Context, g store.Grade) (store.Grade, error) {
	f.grades++
	if f.grades == f.failGrade {
		return store.Grade{}, errors.New("insert grade: connection reset")
	}
	return f.MemoryStore.CreateGrade(ctx, g)
}

func (f *flakyStore) ListSubjects(ctx context.Context) ([]store.Subject, error) {
	f.lists++
	if f.lists == f.failListSubject {
		return nil, errors.New("list subjects: timeout")
	}
	return f.MemoryStore.ListSubjects(ctx)
}

func (f *flakyStore) CreateSubject(ctx context.Context, name string) (store.Subject, error) {
	if name == f.failSubject {
		return store.Subject{}, errors.New("insert subject: timeout")
	}
	return f.MemoryStore.CreateSubject(ctx, name)
}

func TestSaver_FailuresMidBatch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	st := &flakyStore{MemoryStore: mem, failStudent: 2, failGrade: 3, failListSubject: 2, failSubject: "Sciences"}

	ext := types.NewMulti(types.MultiExtractionResult{
		DetectedClass: "CM1",
		Students: []types.StudentEntry{
			{Student: types.ExtractedStudent{FullName: "Jean Dupont"}, Grades: []types.ExtractedGrade{
				{Subject: "Maths", Score: 12, Scale: 20},
				{Subject: "Histoire", Score: 14, Scale: 20},
			}},
			{Student: types.ExtractedStudent{FullName: "Marie Curie"}, Grades: []types.ExtractedGrade{
				{Subject: "Maths", Score: 15, Scale: 20},
			}},
			{Student: types.ExtractedStudent{FullName: "Paul Martin"}, Grades: []types.ExtractedGrade{
				{Subject: "Maths", Score: 10, Scale: 20},
				{Subject: "Sciences", Score: 16, Scale: 20},
				{Subject: "Anglais", Score: 13, Scale: 20},
			}},
		},
	})

	sum, err := NewSaver(st, zerolog.Nop()).Save(ctx, ext, SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.StudentsSaved)
	assert.Equal(t, 1, sum.StudentsFailed)
	assert.Equal(t, 3, sum.GradesSaved)
	assert.Equal(t, 2, sum.GradesFailed)
	assert.Equal(t, 3, sum.SubjectsCreated)
	require.Len(t, sum.Errors, 3)
	assert.Contains(t, sum.Errors[0], "Élève 2 (Marie Curie)")
	assert.Contains(t, sum.Errors[1], "Élève 3, Maths")
	assert.Contains(t, sum.Errors[2], "Élève 3, Sciences")

	students, _ := mem.ListStudents(ctx)
	require.Len(t, students, 2)
	assert.Equal(t, "Jean", students[0].FirstName)
	assert.Equal(t, "Paul", students[1].FirstName)

	grades, _ := mem.ListGrades(ctx)
	require.Len(t, grades, 3)
	assert.Equal(t, students[0].ID, grades[0].StudentID)
	assert.Equal(t, students[0].ID, grades[1].StudentID)
	assert.Equal(t, students[1].ID, grades[2].StudentID)

	subjects, _ := mem.ListSubjects(ctx)
	assert.Len(t, subjects, 3, "a failed list refresh keeps the created subject")
}

func TestSaver_DefaultClassAndLink(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	existing, err := st.CreateStudent(ctx, store.Student{FirstName: "Jean", LastName: "Dupont", ClassName: "CM2"})
	require.NoError(t, err)

	ext := types.NewMulti(types.MultiExtractionResult{Students: []types.StudentEntry{
		{Student: types.ExtractedStudent{FullName: "DUPONT Jean"}, Grades: []types.ExtractedGrade{{Subject: "Maths", Score: 12, Scale: 20}}},
		{Student: types.ExtractedStudent{FullName: "Lucie Bernard"}},
	}})
	sum, err := NewSaver(st, zerolog.Nop()).Save(ctx, ext, SaveOptions{DefaultClass: "CM2", LinkExisting: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.StudentsLinked)
	assert.Equal(t, 1, sum.StudentsSaved)

	grades, _ := st.ListGrades(ctx)
	require.Len(t, grades, 1)
	assert.Equal(t, existing.ID, grades[0].StudentID)

	students, _ := st.ListStudents(ctx)
	require.Len(t, students, 2)
	assert.Equal(t, "CM2", students[1].ClassName)
}

func TestRankings(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	mk := func(first, last, class string) store.Student {
		s, err := st.CreateStudent(ctx, store.Student{FirstName: first, LastName: last, ClassName: class})
		require.NoError(t, err)
		return s
	}
	a := mk("Jean", "Dupont", "6ème A")
	b := mk("Paul", "Martin", "6ème A")
	c := mk("Zoé", "Petit", "6ème A")
	mk("Léa", "Autre", "5e B")
	sub, err := st.CreateSubject(ctx, "Maths")
	require.NoError(t, err)
	for _, g := range []store.Grade{
		{StudentID: a.ID, Score: 15, Scale: 20},
		{StudentID: a.ID, Score: 8, Scale: 10},
		{StudentID: b.ID, Score: 9, Scale: 10},
	} {
		g.SubjectID = sub.ID
		_, err := st.CreateGrade(ctx, g)
		require.NoError(t, err)
	}

	got, err := Rankings(ctx, st, "6EME a")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, b.ID, got[0].StudentID)
	assert.Equal(t, 18.0, got[0].Average)
	assert.Equal(t, a.ID, got[1].StudentID)
	assert.Equal(t, 15.3, got[1].Average)
	assert.Equal(t, 2, got[1].Grades)
	assert.Equal(t, c.ID, got[2].StudentID)
	assert.Zero(t, got[2].Average)
	assert.Equal(t, 3, got[2].Rank)

	all, err := Rankings(ctx, st, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
