package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/config"
)

const MaxMessageLen = config.MaxTelegramMessageLen

// SendLongMessage sends a potentially long message, splitting it into parts
// if needed. The markup goes on the last part. Falls back to plain text if
// Markdown parsing fails.
func SendLongMessage(ctx context.Context, b *bot.Bot, chatID int64, text string, markup models.ReplyMarkup) error {
	text = FixMarkdown(text)
	parts := SplitMessage(text, MaxMessageLen)

	for i, part := range parts {
		params := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      part,
			ParseMode: models.ParseModeMarkdownV1,
		}
		if i == len(parts)-1 && markup != nil {
			params.ReplyMarkup = markup
		}

		_, err := b.SendMessage(ctx, params)
		if err != nil {
			// Fallback to plain text
			slog.Warn("markdown send failed, falling back to plain text", "error", err)
			params.ParseMode = ""
			if _, err = b.SendMessage(ctx, params); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}

	return nil
}

// SendText sends a short plain message and logs failures.
func SendText(ctx context.Context, b *bot.Bot, chatID int64, text string, markup models.ReplyMarkup) {
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		slog.Error("send message", "error", err, "chat_id", chatID)
	}
}

// SendVoice uploads OGG/Opus audio as a voice note.
func SendVoice(ctx context.Context, b *bot.Bot, chatID int64, audio []byte) error {
	_, err := b.SendVoice(ctx, &bot.SendVoiceParams{
		ChatID: chatID,
		Voice:  &models.InputFileUpload{Filename: "reply.ogg", Data: bytes.NewReader(audio)},
	})
	if err != nil {
		return fmt.Errorf("send voice: %w", err)
	}
	return nil
}

// EditMarkup swaps the inline keyboard of a sent message.
func EditMarkup(ctx context.Context, b *bot.Bot, chatID int64, messageID int, markup models.ReplyMarkup) {
	_, err := b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: markup,
	})
	if err != nil {
		slog.Debug("edit reply markup", "error", err, "chat_id", chatID)
	}
}

// StartChatAction repeats a chat action every 4 seconds until the returned
// cancel function is called.
func StartChatAction(ctx context.Context, b *bot.Bot, chatID int64, action models.ChatAction) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		// Send immediately
		b.SendChatAction(ctx, &bot.SendChatActionParams{
			ChatID: chatID,
			Action: action,
		})
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.SendChatAction(ctx, &bot.SendChatActionParams{
					ChatID: chatID,
					Action: action,
				})
			}
		}
	}()
	return cancel
}

// StartTyping shows "typing..." until cancelled.
func StartTyping(ctx context.Context, b *bot.Bot, chatID int64) context.CancelFunc {
	return StartChatAction(ctx, b, chatID, models.ChatActionTyping)
}
