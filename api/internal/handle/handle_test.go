package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradescan/api/internal/cache"
	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
	"gradescan/api/internal/store"
	"gradescan/api/internal/suggest"
)

type fakeExtractor struct {
	res  types.ScanResult
	err  error
	last scan.Image
}

func (f *fakeExtractor) Extract(_ context.Context, img scan.Image, _ types.Mode) (types.ScanResult, error) {
	f.last = img
	return f.res, f.err
}

type fakeStatus struct{}

func (fakeStatus) Status() scan.Status {
	return scan.Status{Initialized: true, ModelAvailable: true, Model: "gemini-test", LastMethod: scan.MethodNone}
}

type downStore struct{ *store.MemoryStore }

func (downStore) Ping(context.Context) error { return errors.New("db down") }

func newHandle(t *testing.T, ex *fakeExtractor) (*Handle, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	sg := suggest.New(st, zerolog.Nop())
	return New(Deps{
		Pipeline:  service.NewPipeline(ex, sg, st, cache.NewMemoryClient(10), service.PipelineOptions{}, zerolog.Nop()),
		Suggester: sg,
		Saver:     service.NewSaver(st, zerolog.Nop()),
		History:   st,
		Records:   st,
		Status:    fakeStatus{},
		Log:       zerolog.Nop(),
	}), st
}

func do(t *testing.T, fn http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func sampleRecord() types.Extraction {
	return types.NewSingle(types.ExtractionResult{
		Student:   types.ExtractedStudent{FullName: "Jean Dupont"},
		ClassName: "6ème A",
		Grades:    []types.ExtractedGrade{{Subject: "math", Score: 15, Scale: 20}},
	})
}

func TestScan_OK(t *testing.T) {
	ex := &fakeExtractor{res: types.ScanResult{Success: true, Parsed: sampleRecord(), Source: types.SourceGemini, Confidence: 0.95, ParseMethod: "json"}}
	h, st := newHandle(t, ex)

	img := base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nrest"))
	rec := do(t, h.Scan, http.MethodPost, "/v1/scan", ScanRequest{ImageB64: "data:image/png;base64," + img, FileName: "bulletin.png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out service.ScanOutcome
	decodeBody(t, rec, &out)
	assert.Equal(t, types.SourceGemini, out.Result.Source)
	assert.Equal(t, "Jean Dupont", out.Record.Students[0].Student.FullName)
	assert.NotEmpty(t, out.ImageHash)
	assert.Equal(t, "image/png", ex.last.MIME)
	assert.Equal(t, "bulletin.png", ex.last.Name)

	hist, err := st.ListScans(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Success)
}

func TestScan_BadRequests(t *testing.T) {
	h, _ := newHandle(t, &fakeExtractor{})

	rec := do(t, h.Scan, http.MethodPost, "/v1/scan", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.Scan, http.MethodPost, "/v1/scan", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var verr struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rec, &verr)
	assert.Equal(t, "validation failed", verr.Error)
	assert.Equal(t, "is required", verr.Fields["image_b64"])

	rec = do(t, h.Scan, http.MethodPost, "/v1/scan", ScanRequest{ImageB64: "aGVsbG8=", Mode: "triple"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	decodeBody(t, rec, &verr)
	assert.Equal(t, "must be one of: single multi", verr.Fields["mode"])

	rec = do(t, h.Scan, http.MethodPost, "/v1/scan", ScanRequest{ImageB64: "%%%"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScan_ExtractError(t *testing.T) {
	h, _ := newHandle(t, &fakeExtractor{err: scan.ErrExhausted})
	rec := do(t, h.Scan, http.MethodPost, "/v1/scan", ScanRequest{ImageB64: "aGVsbG8="})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "all extraction methods failed")
}

func TestRequestDeadline(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/scan?timeoutSec=7", nil)
	assert.Equal(t, 7*time.Second, requestDeadline(r))

	r.Header.Set("X-Request-Timeout", "3")
	assert.Equal(t, 3*time.Second, requestDeadline(r))

	r = httptest.NewRequest(http.MethodPost, "/v1/scan?timeoutSec=abc", nil)
	assert.Equal(t, defaultScanDeadline, requestDeadline(r))
}

func TestSuggestionsAndApply(t *testing.T) {
	h, st := newHandle(t, &fakeExtractor{})
	_, err := st.CreateSubject(context.Background(), "Mathématiques")
	require.NoError(t, err)
	rec0 := sampleRecord()

	rec := do(t, h.Suggestions, http.MethodPost, "/v1/suggestions", RecordRequest{Record: &rec0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var b suggest.Bundle
	decodeBody(t, rec, &b)
	require.NotEmpty(t, b.Subjects)
	assert.Equal(t, "math", b.Subjects[0].Original)
	assert.Equal(t, "Mathématiques", b.Subjects[0].Suggestions[0].Value)

	rec = do(t, h.ApplySuggestions, http.MethodPost, "/v1/suggestions/apply", ApplyRequest{Record: &rec0, Threshold: 0.8})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var applied struct {
		Record types.Extraction `json:"record"`
	}
	decodeBody(t, rec, &applied)
	assert.Equal(t, "Mathématiques", applied.Record.Students[0].Grades[0].Subject)

	sel := suggest.Selection{Kind: suggest.KindSubject, Original: "math", Value: "Maths"}
	rec = do(t, h.ApplySuggestions, http.MethodPost, "/v1/suggestions/apply", ApplyRequest{Record: &rec0, Selection: &sel})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &applied)
	assert.Equal(t, "Maths", applied.Record.Students[0].Grades[0].Subject)

	idx := 4
	sel = suggest.Selection{Kind: suggest.KindClass, Original: "6ème A", Value: "6ème B", StudentIndex: &idx}
	rec = do(t, h.ApplySuggestions, http.MethodPost, "/v1/suggestions/apply", ApplyRequest{Record: &rec0, Selection: &sel})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.ApplySuggestions, http.MethodPost, "/v1/suggestions/apply", `{"record":{"mode":"single"},"selection":{"kind":"teacher"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.Suggestions, http.MethodPost, "/v1/suggestions", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateAndInspect(t *testing.T) {
	h, _ := newHandle(t, &fakeExtractor{})
	r := sampleRecord()
	r.Students[0].Grades[0].Score = 25

	rec := do(t, h.Validate, http.MethodPost, "/v1/validate", RecordRequest{Record: &r})
	require.Equal(t, http.StatusOK, rec.Code)
	var vr ValidateResponse
	decodeBody(t, rec, &vr)
	assert.False(t, vr.Validation.IsValid)
	assert.Contains(t, vr.Validation.Errors, "math: note supérieure à l'échelle (25/20)")
	assert.Contains(t, vr.Report, "❌ Données invalides")

	rec = do(t, h.Inspect, http.MethodPost, "/v1/parse/inspect", InspectRequest{Text: "```json\n{\"student\":{\"fullName\":\"A B\"},\"grades\":[]}\n```"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	rec = do(t, h.Inspect, http.MethodPost, "/v1/parse/inspect", InspectRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveHistoryRankings(t *testing.T) {
	h, st := newHandle(t, &fakeExtractor{})
	r := sampleRecord()

	rec := do(t, h.Save, http.MethodPost, "/v1/save", SaveRequest{Record: &r})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum service.SaveSummary
	decodeBody(t, rec, &sum)
	assert.Equal(t, 1, sum.StudentsSaved)
	assert.Equal(t, 1, sum.GradesSaved)
	assert.Equal(t, 1, sum.SubjectsCreated)

	rec = do(t, h.Rankings, http.MethodGet, "/v1/rankings?class=6EME%20A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rk struct {
		Rankings []service.Ranking `json:"rankings"`
	}
	decodeBody(t, rec, &rk)
	require.Len(t, rk.Rankings, 1)
	assert.Equal(t, 15.0, rk.Rankings[0].Average)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := st.AddScan(ctx, store.ScanEntry{Mode: "single", Success: true})
		require.NoError(t, err)
	}
	rec = do(t, h.History, http.MethodGet, "/v1/history?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Scans []store.ScanEntry `json:"scans"`
	}
	decodeBody(t, rec, &hist)
	assert.Len(t, hist.Scans, 2)

	rec = do(t, h.History, http.MethodGet, "/v1/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.ClearHistory, http.MethodDelete, "/v1/history", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	left, err := st.ListScans(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestHealthz(t *testing.T) {
	h, _ := newHandle(t, &fakeExtractor{})
	rec := do(t, h.Healthz, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hr HealthResponse
	decodeBody(t, rec, &hr)
	assert.Equal(t, "ok", hr.Status)
	require.NotNil(t, hr.Scanner)
	assert.Equal(t, "gemini-test", hr.Scanner.Model)

	h.d.Records = downStore{store.NewMemoryStore()}
	rec = do(t, h.Healthz, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "db down"))
}
