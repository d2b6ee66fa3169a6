package handler

import (
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/config"
	"github.com/set-night/sofia/internal/engine"
	"github.com/set-night/sofia/internal/telegram"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot      *bot.Bot
	cfg      *config.Config
	registry *engine.Registry
	tgLogger *telegram.TelegramLogger
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot      *bot.Bot
	Cfg      *config.Config
	Registry *engine.Registry
	TgLogger *telegram.TelegramLogger
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:      deps.Bot,
		cfg:      deps.Cfg,
		registry: deps.Registry,
		tgLogger: deps.TgLogger,
	}
}

// callbackMessage returns the chat and message a callback button belongs to.
func callbackMessage(q *models.CallbackQuery) (chatID int64, messageID int) {
	if msg := q.Message.Message; msg != nil {
		return msg.Chat.ID, msg.ID
	}
	return 0, 0
}
