package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gradescan/api/internal/service"
)

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	cid := cb.Message.Chat.ID
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	switch cb.Data {
	case cbSave:
		r.onSave(ctx, cid, cb.Message.MessageID)
	case cbDiscard:
		r.onDiscard(cid, cb.Message.MessageID)
	}
}

func (r *Router) takePending(chatID int64, msgID int) (*pendingSave, bool) {
	v, ok := r.pending.Load(chatID)
	if !ok {
		return nil, false
	}
	p := v.(*pendingSave)
	// only the latest scan of the chat can be answered
	if p.MessageID != msgID {
		return nil, false
	}
	if !r.pending.CompareAndDelete(chatID, p) {
		return nil, false
	}
	return p, true
}

func (r *Router) onSave(ctx context.Context, chatID int64, msgID int) {
	r.clearKeyboard(chatID, msgID)
	p, ok := r.takePending(chatID, msgID)
	if !ok {
		r.send(chatID, "Ce scan n'est plus en attente. Renvoyez la photo.")
		return
	}
	sum, err := r.Saver.Save(ctx, p.Record, service.SaveOptions{DefaultClass: p.ClassName, LinkExisting: true})
	if err != nil {
		r.sendError(chatID, err)
		return
	}
	r.send(chatID, formatSummary(sum))
}

func (r *Router) onDiscard(chatID int64, msgID int) {
	r.clearKeyboard(chatID, msgID)
	if _, ok := r.takePending(chatID, msgID); ok {
		r.send(chatID, "Scan ignoré.")
	}
}

func (r *Router) clearKeyboard(chatID int64, msgID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	_, _ = r.Bot.Send(edit)
}
