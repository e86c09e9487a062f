package telegram

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
	"gradescan/api/internal/store"
)

type fakeBot struct {
	mu    sync.Mutex
	sent  []tgbotapi.Chattable
	msgID int
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	b.msgID++
	return tgbotapi.Message{MessageID: b.msgID}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	return "mem://" + fileID, nil
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (b *fakeBot) last() string {
	t := b.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type fakeScanner struct {
	mu   sync.Mutex
	reqs []service.ScanRequest
	err  error
}

func (f *fakeScanner) Scan(_ context.Context, req service.ScanRequest) (service.ScanOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return service.ScanOutcome{}, f.err
	}
	rec := types.NewSingle(types.ExtractionResult{
		Student: types.ExtractedStudent{FullName: "Jean Dupont"},
		Grades:  []types.ExtractedGrade{{Subject: "Mathématiques", Score: 15, Scale: 20}},
	})
	rec.DetectedClass = req.ClassName
	return service.ScanOutcome{
		Result: types.ScanResult{Success: true, Parsed: rec, Source: types.SourceGemini, Confidence: 0.95},
		Record: rec,
		Report: "✅ Données valides\nScore de validation: 100/100",
	}, nil
}

func (f *fakeScanner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeSaver struct {
	got  []types.Extraction
	opts service.SaveOptions
}

func (f *fakeSaver) Save(_ context.Context, ext types.Extraction, opts service.SaveOptions) (service.SaveSummary, error) {
	f.got = append(f.got, ext)
	f.opts = opts
	return service.SaveSummary{StudentsSaved: 1, GradesSaved: 1, SubjectsCreated: 1, Errors: []string{}}, nil
}

func newRouter(t *testing.T) (*Router, *fakeBot, *fakeScanner, *fakeSaver) {
	t.Helper()
	bot := &fakeBot{}
	sc := &fakeScanner{}
	sv := &fakeSaver{}
	st := store.NewMemoryStore()
	_, err := st.AddScan(context.Background(), store.ScanEntry{Mode: "multi", Success: false, ErrorMessage: "quota", StudentsFound: 1})
	require.NoError(t, err)
	r := &Router{
		Bot:      bot,
		Pipeline: sc,
		Saver:    sv,
		History:  st,
		Log:      zerolog.Nop(),
		Debounce: 30 * time.Millisecond,
		Download: func(_ context.Context, url string) ([]byte, error) {
			return []byte(url), nil
		},
	}
	return r, bot, sc, sv
}

func command(chatID int64, text, name string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name) + 1}},
	}}
}

func photo(chatID int64, fileID, group string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:         &tgbotapi.Chat{ID: chatID},
		MediaGroupID: group,
		Photo:        []tgbotapi.PhotoSize{{FileID: fileID + "-small"}, {FileID: fileID}},
	}}
}

func TestCommands_ModeAndClass(t *testing.T) {
	r, bot, _, _ := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, command(1, "/mode multi", "mode"))
	assert.Equal(t, "✅ Mode: multi", bot.last())
	assert.Equal(t, types.ModeMulti, r.settings(1).mode())

	r.HandleUpdate(ctx, command(1, "/mode triple", "mode"))
	assert.Contains(t, bot.last(), "Mode inconnu")

	r.HandleUpdate(ctx, command(1, "/class 6ème A", "class"))
	assert.Equal(t, "6ème A", r.settings(1).class())

	r.HandleUpdate(ctx, command(1, "/class -", "class"))
	assert.Empty(t, r.settings(1).class())

	assert.Equal(t, types.ModeSingle, r.settings(2).mode(), "settings are per chat")
}

func TestCommands_StatusHistory(t *testing.T) {
	r, bot, _, _ := newRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, command(1, "/status", "status"))
	assert.Equal(t, "✅ OK", bot.last())

	r.HandleUpdate(ctx, command(1, "/history", "history"))
	assert.Contains(t, bot.last(), "❌")
	assert.Contains(t, bot.last(), "quota")

	r.HandleUpdate(ctx, command(1, "/nope", "nope"))
	assert.Equal(t, "Commande inconnue", bot.last())
}

func TestPhoto_ScanThenSave(t *testing.T) {
	r, bot, sc, sv := newRouter(t)
	ctx := context.Background()
	r.settings(7).setClass("5ème B")

	r.HandleUpdate(ctx, photo(7, "f1", ""))
	require.Eventually(t, func() bool { return sc.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte("mem://f1"), sc.reqs[0].Image.Data, "largest photo size is used")
	assert.Equal(t, "5ème B", sc.reqs[0].ClassName)

	require.Eventually(t, func() bool {
		_, ok := r.pending.Load(int64(7))
		return ok
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, bot.last(), "Jean Dupont")
	assert.Contains(t, bot.last(), "Mathématiques: 15/20")

	v, _ := r.pending.Load(int64(7))
	msgID := v.(*pendingSave).MessageID

	cb := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb", Data: cbSave,
		Message: &tgbotapi.Message{MessageID: msgID, Chat: &tgbotapi.Chat{ID: 7}},
	}}
	r.HandleUpdate(ctx, cb)
	require.Len(t, sv.got, 1)
	assert.True(t, sv.opts.LinkExisting)
	assert.Equal(t, "5ème B", sv.opts.DefaultClass)
	assert.Contains(t, bot.last(), "✅ Enregistré: 1 élève(s), 1 note(s)")

	r.HandleUpdate(ctx, cb)
	assert.Len(t, sv.got, 1, "a record is saved once")
	assert.Contains(t, bot.last(), "plus en attente")
}

func TestPhoto_DiscardAndStale(t *testing.T) {
	r, bot, _, sv := newRouter(t)
	ctx := context.Background()
	r.pending.Store(int64(3), &pendingSave{MessageID: 10})

	stale := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb", Data: cbSave, Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 3}},
	}}
	r.HandleUpdate(ctx, stale)
	assert.Empty(t, sv.got)

	discard := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb", Data: cbDiscard, Message: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: 3}},
	}}
	r.HandleUpdate(ctx, discard)
	assert.Equal(t, "Scan ignoré.", bot.last())
	_, ok := r.pending.Load(int64(3))
	assert.False(t, ok)
}

func TestPhoto_ScanError(t *testing.T) {
	r, bot, sc, _ := newRouter(t)
	sc.err = errors.New("boom")
	r.HandleUpdate(context.Background(), photo(4, "f", ""))
	require.Eventually(t, func() bool { return sc.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return bot.last() == "Erreur: boom" }, time.Second, 10*time.Millisecond)
}

func TestDocument_Rejected(t *testing.T) {
	r, bot, sc, _ := newRouter(t)
	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 5},
		Document: &tgbotapi.Document{FileID: "d", FileName: "notes.docx", MimeType: "application/msword"},
	}})
	assert.Contains(t, bot.last(), "Format non pris en charge")
	assert.Zero(t, sc.count())
}

func TestFormatStatus(t *testing.T) {
	s := formatStatus(scan.Status{ModelAvailable: false, LastMethod: scan.MethodFallback, LastErrorKind: "rate_limited"})
	assert.Contains(t, s, "Modèle indisponible")
	assert.Contains(t, s, "rate_limited")
}

func TestTruncate(t *testing.T) {
	long := make([]rune, maxMessageLen+10)
	for i := range long {
		long[i] = 'é'
	}
	out := []rune(truncate(string(long)))
	assert.Len(t, out, maxMessageLen+1)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAlbum_StackedIntoOneScan(t *testing.T) {
	r, bot, sc, _ := newRouter(t)
	page := pngBytes(t, 40, 30)
	r.Download = func(context.Context, string) ([]byte, error) { return page, nil }
	ctx := context.Background()

	r.HandleUpdate(ctx, photo(8, "p1", "album"))
	r.HandleUpdate(ctx, photo(8, "p2", "album"))

	require.Eventually(t, func() bool { return sc.count() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(3 * r.Debounce)
	assert.Equal(t, 1, sc.count())

	got := sc.reqs[0].Image
	assert.Equal(t, "image/jpeg", got.MIME)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(got.Data))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 60, cfg.Height)

	n := 0
	for _, s := range bot.texts() {
		if strings.HasPrefix(s, "📷") {
			n++
		}
	}
	assert.Equal(t, 1, n, "one acknowledgement per batch")
}

func TestDocument_PDFScannedAlone(t *testing.T) {
	r, bot, sc, _ := newRouter(t)
	page := pngBytes(t, 40, 30)
	pdf := []byte("%PDF-1.4 bulletin")
	r.Download = func(_ context.Context, url string) ([]byte, error) {
		if url == "mem://doc" {
			return pdf, nil
		}
		return page, nil
	}
	ctx := context.Background()

	r.HandleUpdate(ctx, photo(9, "p1", ""))
	r.HandleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 42,
		Chat:      &tgbotapi.Chat{ID: 9},
		Document:  &tgbotapi.Document{FileID: "doc", FileName: "bulletin.pdf", MimeType: "application/pdf"},
	}})

	require.Eventually(t, func() bool { return sc.count() == 2 }, time.Second, 10*time.Millisecond)
	for _, s := range bot.texts() {
		assert.NotContains(t, s, "assemblage")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	var gotPDF, gotPhoto bool
	for _, req := range sc.reqs {
		switch req.Image.MIME {
		case "application/pdf":
			gotPDF = true
			assert.Equal(t, pdf, req.Image.Data)
			assert.Equal(t, "bulletin.pdf", req.Image.Name)
		default:
			gotPhoto = true
			assert.Equal(t, page, req.Image.Data)
		}
	}
	assert.True(t, gotPDF)
	assert.True(t, gotPhoto)
}
