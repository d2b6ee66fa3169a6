package middleware

import "github.com/go-telegram/bot/models"

// updateSource returns the chat and user an update belongs to, with zero
// values for kinds the bot does not handle.
func updateSource(update *models.Update) (kind string, chatID, userID int64) {
	switch {
	case update.Message != nil:
		kind = "message"
		chatID = update.Message.Chat.ID
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
	case update.CallbackQuery != nil:
		kind = "callback_query"
		if update.CallbackQuery.Message.Message != nil {
			chatID = update.CallbackQuery.Message.Message.Chat.ID
		}
		userID = update.CallbackQuery.From.ID
	default:
		kind = "unknown"
	}
	return kind, chatID, userID
}
