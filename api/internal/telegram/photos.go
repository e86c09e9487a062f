package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
	"gradescan/api/internal/util"
)

func acceptedDocument(mime, name string) bool {
	if strings.HasPrefix(mime, "image/") || mime == "application/pdf" {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".pdf":
		return true
	}
	return false
}

func isPDF(mime, name string) bool {
	return mime == "application/pdf" || strings.EqualFold(filepath.Ext(name), ".pdf")
}

// acceptFile downloads the file and adds it to the chat's batch. Photos of
// one album share a batch; the batch is scanned once no photo arrived for
// Debounce.
func (r *Router) acceptFile(ctx context.Context, msg *tgbotapi.Message, fileID, name, mime string) {
	cid := msg.Chat.ID
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	data, err := r.download(ctx, url)
	if err != nil {
		r.sendError(cid, fmt.Errorf("téléchargement: %w", err))
		return
	}

	pdf := isPDF(mime, name)
	key := fmt.Sprintf("chat:%d", cid)
	switch {
	case pdf:
		// PDFs cannot be stacked with other pages and are scanned alone
		key = fmt.Sprintf("pdf:%d:%d", cid, msg.MessageID)
	case msg.MediaGroupID != "":
		key = "grp:" + msg.MediaGroupID
	}

	for {
		bi, _ := r.batches.LoadOrStore(key, &photoBatch{ChatID: cid, Key: key})
		b := bi.(*photoBatch)

		b.mu.Lock()
		if b.frozen {
			// processBatch already took this one
			b.mu.Unlock()
			r.batches.CompareAndDelete(key, b)
			continue
		}
		b.files = append(b.files, batchFile{Data: data, Name: name, MIME: mime})
		first := len(b.files) == 1
		if b.timer != nil {
			b.timer.Stop()
		}
		b.timer = time.AfterFunc(r.debounce(), func() { r.processBatch(key, b) })
		b.mu.Unlock()

		switch {
		case pdf:
			r.send(cid, "📄 PDF reçu, lecture en cours.")
		case first:
			r.send(cid, "📷 Photo reçue. Si le document a plusieurs pages, envoyez-les à la suite.")
		}
		return
	}
}

func (r *Router) processBatch(key string, b *photoBatch) {
	b.mu.Lock()
	b.frozen = true
	files := append([]batchFile(nil), b.files...)
	b.mu.Unlock()
	r.batches.CompareAndDelete(key, b)

	if len(files) == 0 {
		return
	}

	img := scan.Image{Data: files[0].Data, Name: files[0].Name, MIME: files[0].MIME}
	if len(files) > 1 {
		pages := make([][]byte, len(files))
		for i, f := range files {
			pages[i] = f.Data
		}
		merged, err := util.StackVertical(pages, maxPixels, stackQuality)
		if err != nil {
			r.sendError(b.ChatID, fmt.Errorf("assemblage des pages: %w", err))
			return
		}
		img = scan.Image{Data: merged, MIME: "image/jpeg"}
	}

	timeout := r.ScanTimeout
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	r.runScan(ctx, b.ChatID, img)
}

func (r *Router) runScan(ctx context.Context, chatID int64, img scan.Image) {
	s := r.settings(chatID)
	class := s.class()
	out, err := r.Pipeline.Scan(ctx, service.ScanRequest{Image: img, Mode: s.mode(), ClassName: class})
	if err != nil {
		r.sendError(chatID, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, truncate(formatOutcome(out)))
	msg.ReplyMarkup = makeSaveKeyboard()
	sent, err := r.Bot.Send(msg)
	if err != nil {
		r.Log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send")
		return
	}
	r.pending.Store(chatID, &pendingSave{Record: out.Record, ClassName: class, MessageID: sent.MessageID})
}

func (r *Router) debounce() time.Duration {
	if r.Debounce > 0 {
		return r.Debounce
	}
	return defaultDebounce
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	if r.Download != nil {
		return r.Download(ctx, url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

var httpClient = &http.Client{Timeout: 60 * time.Second}
