package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Limiter counts requests in the chat's current window.
type Limiter interface {
	Hit(ctx context.Context, chatID int64) (int, time.Time, error)
}

// RateLimit returns middleware that enforces a per-minute limit on messages.
// Callbacks are not counted.
func RateLimit(limiter Limiter, limit int) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if update.Message == nil {
				next(ctx, b, update)
				return
			}

			chatID := update.Message.Chat.ID

			count, _, err := limiter.Hit(ctx, chatID)
			if err != nil {
				slog.Error("rate limit check failed", "error", err, "chat_id", chatID)
				next(ctx, b, update)
				return
			}

			if count > limit {
				slog.Debug("rate limited", "chat_id", chatID, "count", count, "limit", limit)
				b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chatID,
					Text:   "⏳ Too many messages. Please wait a moment.",
				})
				return
			}

			next(ctx, b, update)
		}
	}
}
