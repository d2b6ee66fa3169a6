package handler

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/engine"
	"github.com/set-night/sofia/internal/middleware"
	tg "github.com/set-night/sofia/internal/telegram"
	"github.com/set-night/sofia/internal/voice"
)

const (
	dictationSendData    = "dict_send"
	dictationDiscardData = "dict_discard"
)

func (h *Handler) handleVoice(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	// The started notice comes from the state hook.
	if err := e.StartVoice(ctx); err != nil {
		slog.Warn("start voice conversation", "error", err, "chat_id", update.Message.Chat.ID)
		tg.SendText(ctx, b, update.Message.Chat.ID, errorText(err), nil)
	}
}

func (h *Handler) handleEndVoice(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	if e.VoiceState() == voice.Idle {
		tg.SendText(ctx, b, update.Message.Chat.ID, "🔇 No voice conversation is running.", nil)
		return
	}
	e.EndVoice()
}

// handleVoiceNote feeds a recorded voice note to the engine: into the running
// conversation, or as a dictation that becomes a draft.
func (h *Handler) handleVoiceNote(ctx context.Context, b *bot.Bot, msg *models.Message, e *engine.Engine) {
	chatID := msg.Chat.ID

	audio, err := tg.DownloadFile(ctx, b, msg.Voice.FileID)
	if err != nil {
		slog.Error("download voice note", "error", err, "chat_id", chatID)
		tg.SendText(ctx, b, chatID, "❌ Couldn't download the voice note.", nil)
		return
	}

	stopTyping := tg.StartTyping(ctx, b, chatID)
	text, err := e.HandleUtterance(ctx, audio)
	stopTyping()
	if err != nil {
		slog.Info("voice note not transcribed", "error", err, "chat_id", chatID)
		tg.SendText(ctx, b, chatID, errorText(err), nil)
		return
	}
	if text == "" {
		// Consumed by the voice conversation.
		return
	}

	tg.SendText(ctx, b, chatID, "📝 "+text, tg.InlineKeyboard(tg.ButtonRow(
		tg.InlineButton("➤ Send", dictationSendData),
		tg.InlineButton("✖ Discard", dictationDiscardData),
	)))
}

func (h *Handler) handleDictationSend(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	chatID, messageID := callbackMessage(update.CallbackQuery)
	if e.Compose() == "" {
		answer(ctx, b, update.CallbackQuery, "Nothing to send.")
		tg.EditMarkup(ctx, b, chatID, messageID, tg.EmptyKeyboard())
		return
	}
	answer(ctx, b, update.CallbackQuery, "")
	tg.EditMarkup(ctx, b, chatID, messageID, tg.EmptyKeyboard())

	stopTyping := tg.StartTyping(ctx, b, chatID)
	defer stopTyping()

	res, err := e.SendCompose(ctx)
	if err != nil {
		tg.SendText(ctx, b, chatID, errorText(err), nil)
		return
	}
	h.renderResult(ctx, b, chatID, e, res, true)
}

func (h *Handler) handleDictationDiscard(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	e.SetCompose("")
	answer(ctx, b, update.CallbackQuery, "Discarded")
	chatID, messageID := callbackMessage(update.CallbackQuery)
	tg.EditMarkup(ctx, b, chatID, messageID, tg.EmptyKeyboard())
}

func (h *Handler) handleSpeak(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	idx, err := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, tg.SpeakPrefix))
	if err != nil {
		answer(ctx, b, update.CallbackQuery, "")
		return
	}
	if err := e.SpeakMessage(ctx, idx); err != nil {
		answer(ctx, b, update.CallbackQuery, errorText(err))
		return
	}
	answer(ctx, b, update.CallbackQuery, "🔊")
}
