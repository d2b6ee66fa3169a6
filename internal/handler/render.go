package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/dispatch"
	"github.com/set-night/sofia/internal/domain"
	"github.com/set-night/sofia/internal/engine"
	tg "github.com/set-night/sofia/internal/telegram"
	"github.com/set-night/sofia/internal/usage"
	"github.com/set-night/sofia/internal/voice"
)

// notifyTimeout bounds messages sent from engine callbacks, which have no
// update context.
const notifyTimeout = 15 * time.Second

// errorText turns an engine error into a reply for the user.
func errorText(err error) string {
	var limitErr *domain.LimitError
	if errors.As(err, &limitErr) {
		if limitErr.Counter == domain.CounterWebSearches {
			return fmt.Sprintf("🌐 Web search limit reached (%d/%d). Turn it off with /web or see /usage.",
				limitErr.Used, limitErr.Limit)
		}
		return fmt.Sprintf("💬 Message limit reached (%d/%d). See /usage.", limitErr.Used, limitErr.Limit)
	}

	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		switch valErr.Reason {
		case domain.RejectTooLarge:
			return fmt.Sprintf("❌ %s is too large for the attachment limit.", valErr.Name)
		case domain.RejectSizeUnknown:
			return fmt.Sprintf("❌ %s: Telegram did not report its size, so it can't be attached.", valErr.Name)
		}
		return fmt.Sprintf("❌ %s: this file type is not supported.", valErr.Name)
	}

	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return "✏️ Type a message or attach a file first."
	case errors.Is(err, domain.ErrVoiceDisabled):
		return "🔇 Voice is not configured on this bot."
	case errors.Is(err, domain.ErrVoiceBusy):
		return "🎙 A voice conversation is running. Use /endvoice first."
	case errors.Is(err, domain.ErrNoSpeech):
		return "🤷 I didn't catch anything. Try again."
	case errors.Is(err, domain.ErrSpeechCapture):
		return "❌ Couldn't recognize the recording."
	case errors.Is(err, domain.ErrSpeechOutput):
		return "❌ Couldn't read the reply aloud."
	case errors.Is(err, domain.ErrSessionNotFound):
		return "❌ That chat no longer exists."
	case errors.Is(err, domain.ErrNotTemporary):
		return "💾 This chat is already saved."
	case errors.Is(err, domain.ErrNoCyberGame):
		return "🛡 No simulation is running. Start one with /cyber."
	case errors.Is(err, domain.ErrNotAssistant):
		return "❌ Only assistant replies can be rated or read aloud."
	case errors.Is(err, domain.ErrValidation):
		return "❌ Invalid input."
	case errors.Is(err, domain.ErrRateLimited):
		return "⏳ The assistant is busy. Try again in a moment."
	case errors.Is(err, domain.ErrTransport):
		return "❌ Couldn't reach the assistant. Try again later."
	}
	return "❌ Something went wrong."
}

// usageText renders the account's counters against its plan.
func usageText(r usage.Report) string {
	if r.Unlimited {
		return fmt.Sprintf("♾ *Unlimited plan*\n\n💬 Messages sent: %d\n🌐 Web searches: %d",
			r.Counters.MessagesUsed, r.Counters.WebSearchesUsed)
	}
	return fmt.Sprintf("📊 *Usage*\n\n💬 Messages: %d/%d (%s%%)\n🌐 Web searches: %d/%d (%s%%)",
		r.Counters.MessagesUsed, r.Limits.MessageLimit, r.MessagesPercent.String(),
		r.Counters.WebSearchesUsed, r.Limits.WebSearchLimit, r.WebSearchPercent.String())
}

// replyMarkup is the button row under an assistant reply.
func replyMarkup(e *engine.Engine, idx int, speak bool) *models.InlineKeyboardMarkup {
	current, _ := e.Judgment(idx)
	return tg.FeedbackKeyboard(idx, current, speak && e.SpeechEnabled())
}

// renderResult sends a dispatched turn's outcome to the chat.
func (h *Handler) renderResult(ctx context.Context, b *bot.Bot, chatID int64, e *engine.Engine, res dispatch.Result, speak bool) {
	if res.Dropped {
		slog.Debug("reply dropped after session change", "chat_id", chatID)
		return
	}
	if res.Err != nil {
		h.tgLogger.LogDispatchFailure(chatID, string(e.Mode()), res.Err)
	}
	if res.Sender != domain.SenderAssistant {
		tg.SendText(ctx, b, chatID, "⚠️ "+res.Reply, nil)
		return
	}
	if err := tg.SendLongMessage(ctx, b, chatID, res.Reply, replyMarkup(e, res.ReplyIndex, speak)); err != nil {
		slog.Error("send reply", "error", err, "chat_id", chatID)
	}
}

// ConfigureEngine wires engine events to the chat. It runs once per engine.
func (h *Handler) ConfigureEngine(chatID int64, e *engine.Engine) {
	e.OnVoiceTurn(func(text string, res dispatch.Result) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		tg.SendText(ctx, h.bot, chatID, "🗣 "+text, nil)
		h.renderResult(ctx, h.bot, chatID, e, res, false)
	})

	var prev atomic.Int64
	e.OnVoiceState(func(s voice.State) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		from := voice.State(prev.Swap(int64(s)))
		switch s {
		case voice.Listening:
			if from == voice.Idle {
				tg.SendText(ctx, h.bot, chatID, "🎙 Voice conversation started. Send voice notes, /endvoice to stop.", nil)
			}
		case voice.Thinking:
			h.bot.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})
		case voice.Speaking:
			h.bot.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionRecordVoice})
		case voice.Idle:
			tg.SendText(ctx, h.bot, chatID, "🔇 Voice conversation ended.", nil)
		}
	})

	e.OnVoiceError(func(err error) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		tg.SendText(ctx, h.bot, chatID, errorText(err), nil)
		h.tgLogger.LogError(err, fmt.Sprintf("voice conversation in chat %d", chatID))
	})

	e.OnAttachmentFailed(func(name string, err error) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		tg.SendText(ctx, h.bot, chatID, fmt.Sprintf("❌ Couldn't read %s, it was removed from your attachments.", name), nil)
	})
}
