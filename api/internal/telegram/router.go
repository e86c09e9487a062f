// Package telegram is the intake bot: teachers send report card photos, get
// the extraction back for review and save it with one tap.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
	"gradescan/api/internal/store"
)

const maxMessageLen = 3900

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Scanner interface {
	Scan(ctx context.Context, req service.ScanRequest) (service.ScanOutcome, error)
}

type Saver interface {
	Save(ctx context.Context, ext types.Extraction, opts service.SaveOptions) (service.SaveSummary, error)
}

type HistoryLister interface {
	ListScans(ctx context.Context, limit int) ([]store.ScanEntry, error)
}

type StatusReporter interface {
	Status() scan.Status
}

type Router struct {
	Bot      Bot
	Pipeline Scanner
	Saver    Saver
	History  HistoryLister
	// Status may be nil.
	Status StatusReporter
	Log    zerolog.Logger

	// Debounce is how long an album waits for its next photo.
	Debounce time.Duration
	// ScanTimeout bounds one scan, album included.
	ScanTimeout time.Duration
	// Download fetches a file URL; nil means a plain HTTP GET.
	Download func(ctx context.Context, url string) ([]byte, error)

	chats   sync.Map // chatID -> *chatSettings
	batches sync.Map // batch key -> *photoBatch
	pending sync.Map // chatID -> *pendingSave
}

// HandleUpdate dispatches one update. It blocks for commands and callbacks;
// photos are scanned once their batch settles.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		ph := msg.Photo[len(msg.Photo)-1]
		r.acceptFile(ctx, msg, ph.FileID, "", "image/jpeg")
	case msg.Document != nil:
		doc := msg.Document
		if !acceptedDocument(doc.MimeType, doc.FileName) {
			r.send(msg.Chat.ID, "Format non pris en charge. Envoyez une photo, une image ou un PDF.")
			return
		}
		r.acceptFile(ctx, msg, doc.FileID, doc.FileName, doc.MimeType)
	default:
		r.send(msg.Chat.ID, helpText)
	}
}

const helpText = "Envoyez la photo d'un bulletin ou d'une liste de notes, je la lis et vous propose l'enregistrement.\n" +
	"Commandes:\n" +
	"/mode single|multi - un élève ou une liste\n" +
	"/class <nom> - classe par défaut\n" +
	"/status - état du service\n" +
	"/history - derniers scans"

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)

	case "mode":
		if args == "" {
			r.send(cid, "Mode actuel: "+string(r.settings(cid).mode())+"\nUtilisation: /mode single|multi")
			return
		}
		switch strings.ToLower(args) {
		case string(types.ModeSingle), string(types.ModeMulti):
			r.settings(cid).setMode(types.ParseMode(args))
			r.send(cid, "✅ Mode: "+strings.ToLower(args))
		default:
			r.send(cid, "Mode inconnu. Disponibles: single | multi")
		}

	case "class":
		s := r.settings(cid)
		if args == "" {
			if c := s.class(); c != "" {
				r.send(cid, "Classe par défaut: "+c+"\nPour l'effacer: /class -")
			} else {
				r.send(cid, "Aucune classe par défaut. Utilisation: /class 6ème A")
			}
			return
		}
		if args == "-" {
			s.setClass("")
			r.send(cid, "Classe par défaut effacée.")
			return
		}
		s.setClass(args)
		r.send(cid, "✅ Classe par défaut: "+args)

	case "status":
		if r.Status == nil {
			r.send(cid, "✅ OK")
			return
		}
		r.send(cid, formatStatus(r.Status.Status()))

	case "history":
		if r.History == nil {
			r.send(cid, "Historique indisponible.")
			return
		}
		list, err := r.History.ListScans(ctx, 5)
		if err != nil {
			r.sendError(cid, err)
			return
		}
		r.send(cid, formatHistory(list))

	default:
		r.send(cid, "Commande inconnue")
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, truncate(text))
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send")
	}
}

func (r *Router) sendError(chatID int64, err error) {
	r.Log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram")
	r.send(chatID, fmt.Sprintf("Erreur: %v", err))
}

func truncate(s string) string {
	rs := []rune(s)
	if len(rs) > maxMessageLen {
		return string(rs[:maxMessageLen]) + "…"
	}
	return s
}
