package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/engine"
	"github.com/set-night/sofia/internal/middleware"
	tg "github.com/set-night/sofia/internal/telegram"
)

// HandleTextPrivate processes private messages: text goes to the assistant,
// photos and documents join the attachment queue, voice notes go to speech.
func (h *Handler) HandleTextPrivate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != "private" {
		return
	}

	msg := update.Message

	// Skip commands
	if strings.HasPrefix(msg.Text, "/") {
		return
	}

	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	if msg.Voice != nil {
		h.handleVoiceNote(ctx, b, msg, e)
		return
	}

	text := msg.Text
	if h.attach(ctx, b, msg, e) {
		// A caption sends the attachment right away.
		text = msg.Caption
		if text == "" {
			return
		}
	}

	h.send(ctx, b, msg.Chat.ID, e, text)
}

func (h *Handler) send(ctx context.Context, b *bot.Bot, chatID int64, e *engine.Engine, text string) {
	stopTyping := tg.StartTyping(ctx, b, chatID)
	defer stopTyping()

	res, err := e.Send(ctx, text)
	if err != nil {
		slog.Info("message not sent", "error", err, "chat_id", chatID)
		tg.SendText(ctx, b, chatID, errorText(err), nil)
		return
	}
	h.renderResult(ctx, b, chatID, e, res, true)
}

func (h *Handler) handleFeedback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	j, idx, err := tg.ParseFeedbackData(update.CallbackQuery.Data)
	if err != nil {
		slog.Warn("parse feedback callback", "error", err)
		answer(ctx, b, update.CallbackQuery, "")
		return
	}

	if err := e.Rate(ctx, idx, j); err != nil {
		answer(ctx, b, update.CallbackQuery, errorText(err))
		return
	}
	answer(ctx, b, update.CallbackQuery, "")

	chatID, messageID := callbackMessage(update.CallbackQuery)
	tg.EditMarkup(ctx, b, chatID, messageID, tg.FeedbackKeyboard(idx, j, e.SpeechEnabled()))
}
