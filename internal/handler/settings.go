package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/domain"
	"github.com/set-night/sofia/internal/middleware"
	tg "github.com/set-night/sofia/internal/telegram"
)

func (h *Handler) handleWeb(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	on := e.Mode() != domain.ModeWebSearch
	e.SetWebSearch(on)

	text := "🌐 Web search is off."
	if on {
		text = "🌐 Web search is on for your next messages."
		if r := e.Usage(); !r.Unlimited && r.Counters.WebSearchesUsed >= r.Limits.WebSearchLimit {
			text += " Your plan's web searches are used up, see /usage."
		}
	}
	tg.SendText(ctx, b, update.Message.Chat.ID, text, nil)
}

func (h *Handler) handleUsage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      usageText(e.Usage()),
		ParseMode: models.ParseModeMarkdownV1,
	})
}
