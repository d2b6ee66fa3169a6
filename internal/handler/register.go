package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	tg "github.com/set-night/sofia/internal/telegram"
)

// Register registers all command and callback handlers on the bot instance.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/new", bot.MatchTypePrefix, h.handleNew)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/temp", bot.MatchTypePrefix, h.handleTemp)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/save", bot.MatchTypePrefix, h.handleSave)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/rename", bot.MatchTypePrefix, h.handleRename)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/chats", bot.MatchTypePrefix, h.handleChats)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/web", bot.MatchTypePrefix, h.handleWeb)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/usage", bot.MatchTypePrefix, h.handleUsage)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/voice", bot.MatchTypePrefix, h.handleVoice)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/endvoice", bot.MatchTypePrefix, h.handleEndVoice)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/files", bot.MatchTypePrefix, h.handleFiles)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cyber", bot.MatchTypePrefix, h.handleCyber)

	// Chats callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, chatOpenPrefix, bot.MatchTypePrefix, h.handleChatOpen)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, chatDeletePrefix, bot.MatchTypePrefix, h.handleChatDelete)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, chatNewData, bot.MatchTypeExact, h.handleChatNew)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, chatsPagePrefix+"_", bot.MatchTypePrefix, h.handleChatsPage)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "cur", bot.MatchTypeExact, h.handleNoop)

	// Attachment callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, fileRemovePrefix, bot.MatchTypePrefix, h.handleFileRemove)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, fileClearData, bot.MatchTypeExact, h.handleFileClear)

	// Reply callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, tg.FeedbackPrefix, bot.MatchTypePrefix, h.handleFeedback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, tg.SpeakPrefix, bot.MatchTypePrefix, h.handleSpeak)

	// Dictation callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, dictationSendData, bot.MatchTypeExact, h.handleDictationSend)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, dictationDiscardData, bot.MatchTypeExact, h.handleDictationDiscard)

	// Cyber training callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cyberLevelPrefix, bot.MatchTypePrefix, h.handleCyberLevel)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cyberEndData, bot.MatchTypeExact, h.handleCyberEnd)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cyberExpertData, bot.MatchTypeExact, h.handleCyberExpert)

	// Every other message, including photos, documents and voice notes,
	// which carry no text and so match the empty prefix.
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, h.HandleTextPrivate)
}

// handleNoop is a no-op callback handler used for pagination indicators and other
// non-interactive inline buttons. It simply acknowledges the callback query.
func (h *Handler) handleNoop(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: update.CallbackQuery.ID,
		})
	}
}

// answer acknowledges a callback, optionally with a toast.
func answer(ctx context.Context, b *bot.Bot, q *models.CallbackQuery, text string) {
	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: q.ID,
		Text:            text,
	})
}
