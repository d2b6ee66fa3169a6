package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/attachment"
	"github.com/set-night/sofia/internal/config"
	"github.com/set-night/sofia/internal/engine"
	"github.com/set-night/sofia/internal/middleware"
	tg "github.com/set-night/sofia/internal/telegram"
)

const (
	fileRemovePrefix = "file_rm_"
	fileClearData    = "file_clear"
)

func (h *Handler) handleFiles(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	text, keyboard := filesView(e.Pending())
	tg.SendText(ctx, b, update.Message.Chat.ID, text, keyboard)
}

// filesView lists pending attachments with a remove button each.
func filesView(items []attachment.Item) (string, models.ReplyMarkup) {
	if len(items) == 0 {
		return "📎 No pending attachments.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📎 Pending attachments (%d):\n", len(items))
	var rows [][]models.InlineKeyboardButton
	for _, it := range items {
		status := ""
		if !it.Ready {
			status = " ⏳"
		}
		fmt.Fprintf(&sb, "\n• %s (%s)%s", it.Name, formatSize(it.SizeBytes), status)
		rows = append(rows, tg.ButtonRow(
			tg.InlineButton("✖ "+shorten(it.Name, config.AttachmentLabelRunes), fileRemovePrefix+it.ID),
		))
	}
	rows = append(rows, tg.ButtonRow(tg.InlineButton("🗑 Clear all", fileClearData)))
	return sb.String(), tg.InlineKeyboard(rows...)
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (h *Handler) handleFileRemove(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}
	answer(ctx, b, update.CallbackQuery, "")

	e.RemoveAttachment(strings.TrimPrefix(update.CallbackQuery.Data, fileRemovePrefix))
	h.refreshFiles(ctx, b, update.CallbackQuery, e)
}

func (h *Handler) handleFileClear(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}
	answer(ctx, b, update.CallbackQuery, "")

	e.ClearAttachments()
	h.refreshFiles(ctx, b, update.CallbackQuery, e)
}

func (h *Handler) refreshFiles(ctx context.Context, b *bot.Bot, q *models.CallbackQuery, e *engine.Engine) {
	chatID, messageID := callbackMessage(q)
	text, keyboard := filesView(e.Pending())
	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	b.EditMessageText(ctx, params)
}

// attach queues a photo or document from msg. It reports whether msg carried one.
func (h *Handler) attach(ctx context.Context, b *bot.Bot, msg *models.Message, e *engine.Engine) bool {
	var f attachment.File
	switch {
	case len(msg.Photo) > 0:
		// Highest resolution comes last.
		photo := msg.Photo[len(msg.Photo)-1]
		f = attachment.File{
			Name:     "photo_" + photo.FileUniqueID + ".jpg",
			MimeType: "image/jpeg",
			Size:     int64(photo.FileSize),
			Ref:      photo.FileID,
			Open:     tg.FileOpener(b, photo.FileID),
		}
	case msg.Document != nil:
		f = attachment.File{
			Name:     msg.Document.FileName,
			MimeType: msg.Document.MimeType,
			Size:     int64(msg.Document.FileSize),
			Ref:      msg.Document.FileID,
			Open:     tg.FileOpener(b, msg.Document.FileID),
		}
	default:
		return false
	}

	chatID := msg.Chat.ID
	if _, err := e.Attach(ctx, f); err != nil {
		slog.Info("attachment rejected", "error", err, "chat_id", chatID, "name", f.Name)
		tg.SendText(ctx, b, chatID, errorText(err), nil)
		return true
	}

	if msg.Caption == "" {
		tg.SendText(ctx, b, chatID,
			fmt.Sprintf("📎 %s attached. It goes out with your next message, /files to review.", f.Name), nil)
	}
	return true
}
