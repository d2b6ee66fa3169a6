package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const welcomeText = "👋 Hi! I'm Sofia, your assistant.\n\n" +
	"📋 *Commands:*\n" +
	"/new — Start a new chat\n" +
	"/temp — Start a temporary chat\n" +
	"/save — Save the temporary chat to history\n" +
	"/chats — Chat history\n" +
	"/rename — Rename the current chat\n" +
	"/web — Toggle web search\n" +
	"/files — Pending attachments\n" +
	"/usage — Plan usage\n" +
	"/cyber — Cyber security training\n" +
	"/voice — Start a voice conversation\n" +
	"/endvoice — End the voice conversation\n\n" +
	"Send a message, a photo or a file to begin. A voice note is transcribed into a draft you can send."

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      welcomeText,
		ParseMode: models.ParseModeMarkdownV1,
	})
}
