package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/middleware"
	tg "github.com/set-night/sofia/internal/telegram"
)

func (h *Handler) handleNew(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	e.NewChat(false)
	tg.SendText(ctx, b, update.Message.Chat.ID, "🔄 New chat started.", nil)
}

func (h *Handler) handleTemp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	e.NewChat(true)
	tg.SendText(ctx, b, update.Message.Chat.ID,
		"🕶 Temporary chat started. It won't appear in history unless you /save it.", nil)
}

func (h *Handler) handleSave(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	chatID := update.Message.Chat.ID
	if err := e.SaveTemporary(ctx); err != nil {
		slog.Warn("save temporary chat", "error", err, "chat_id", chatID)
		tg.SendText(ctx, b, chatID, errorText(err), nil)
		return
	}
	tg.SendText(ctx, b, chatID, "💾 Chat saved to history.", nil)
}

func (h *Handler) handleRename(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	chatID := update.Message.Chat.ID
	title := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/rename"))
	if title == "" {
		tg.SendText(ctx, b, chatID, "Usage: /rename <title>", nil)
		return
	}

	id := e.Binding().SessionID
	if id == "" {
		tg.SendText(ctx, b, chatID, "✏️ Nothing to rename yet. Send a message first.", nil)
		return
	}

	if err := e.RenameChat(ctx, id, title); err != nil {
		slog.Error("rename chat", "error", err, "chat_id", chatID, "session_id", id)
		tg.SendText(ctx, b, chatID, errorText(err), nil)
		return
	}
	tg.SendText(ctx, b, chatID, "✏️ Chat renamed to "+title+".", nil)
}
