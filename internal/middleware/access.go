package middleware

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/engine"
)

type ctxKey string

const EngineKey ctxKey = "engine"

// GetEngine extracts the chat's engine from context.
func GetEngine(ctx context.Context) *engine.Engine {
	e, ok := ctx.Value(EngineKey).(*engine.Engine)
	if !ok {
		return nil
	}
	return e
}

// WithEngine stores e in ctx.
func WithEngine(ctx context.Context, e *engine.Engine) context.Context {
	return context.WithValue(ctx, EngineKey, e)
}

// Access drops updates from users outside the allow-list and from
// non-private chats.
func Access(cfg interface{ IsAllowed(int64) bool }) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			_, chatID, userID := updateSource(update)
			if userID == 0 || !cfg.IsAllowed(userID) {
				slog.Debug("update from unknown user dropped", "user_id", userID)
				return
			}
			// Private chats have the user's id.
			if chatID != userID {
				return
			}
			next(ctx, b, update)
		}
	}
}

// Engines resolves engines per chat.
type Engines interface {
	Get(ctx context.Context, chatID int64) (*engine.Engine, error)
}

// EngineLoader returns middleware that loads the chat's engine into context.
func EngineLoader(engines Engines) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			_, chatID, _ := updateSource(update)
			if chatID != 0 {
				e, err := engines.Get(ctx, chatID)
				if err != nil {
					slog.Error("load engine", "error", err, "chat_id", chatID)
				} else {
					ctx = WithEngine(ctx, e)
				}
			}
			next(ctx, b, update)
		}
	}
}
