package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/config"
	"github.com/set-night/sofia/internal/domain"
	"github.com/set-night/sofia/internal/engine"
	"github.com/set-night/sofia/internal/middleware"
	tg "github.com/set-night/sofia/internal/telegram"
)

const (
	chatOpenPrefix   = "chat_open_"
	chatDeletePrefix = "chat_del_"
	chatNewData      = "chat_new"
	chatsPagePrefix  = "chats_page"
)

func (h *Handler) handleChats(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	h.sendChatsPage(ctx, b, update.Message.Chat.ID, e, 0, 0)
}

// sendChatsPage sends the chat list, or edits messageID in place when set.
func (h *Handler) sendChatsPage(ctx context.Context, b *bot.Bot, chatID int64, e *engine.Engine, page, messageID int) {
	chats, err := e.Chats(ctx)
	if err != nil {
		slog.Error("list chats", "error", err, "chat_id", chatID)
		tg.SendText(ctx, b, chatID, errorText(err), nil)
		return
	}

	text, keyboard := chatsPage(chats, e.Binding().SessionID, page)

	if messageID != 0 {
		b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        text,
			ParseMode:   models.ParseModeMarkdownV1,
			ReplyMarkup: keyboard,
		})
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: keyboard,
	})
}

// chatsPage renders one page of saved chats with open and delete buttons.
// The current chat is marked.
func chatsPage(chats []domain.ChatSummary, currentID string, page int) (string, *models.InlineKeyboardMarkup) {
	totalPages := (len(chats) + config.ChatsPerPage - 1) / config.ChatsPerPage
	if totalPages == 0 {
		totalPages = 1
	}
	page = max(0, min(page, totalPages-1))

	var sb strings.Builder
	fmt.Fprintf(&sb, "📂 *Chats* (%d)\n", len(chats))
	if len(chats) == 0 {
		sb.WriteString("\nNo saved chats yet.")
	}

	var rows [][]models.InlineKeyboardButton
	start := page * config.ChatsPerPage
	end := min(start+config.ChatsPerPage, len(chats))
	for _, c := range chats[start:end] {
		label := c.Title
		if c.ID == currentID {
			label += " ✅"
		}
		rows = append(rows, tg.ButtonRow(
			tg.InlineButton(label, chatOpenPrefix+c.ID),
			tg.InlineButton("🗑", chatDeletePrefix+c.ID),
		))
	}

	rows = append(rows, tg.ButtonRow(tg.InlineButton("➕ New chat", chatNewData)))
	if totalPages > 1 {
		rows = append(rows, tg.PaginationRow(page, totalPages, chatsPagePrefix))
	}

	return sb.String(), tg.InlineKeyboard(rows...)
}

func (h *Handler) handleChatOpen(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	chatID, messageID := callbackMessage(update.CallbackQuery)
	id := strings.TrimPrefix(update.CallbackQuery.Data, chatOpenPrefix)
	if err := e.LoadChat(ctx, id); err != nil {
		slog.Error("load chat", "error", err, "chat_id", chatID, "session_id", id)
		answer(ctx, b, update.CallbackQuery, errorText(err))
		return
	}
	answer(ctx, b, update.CallbackQuery, "")

	h.sendChatsPage(ctx, b, chatID, e, 0, messageID)
	h.sendTranscriptTail(ctx, b, chatID, e)
}

// sendTranscriptTail shows the last exchange of a resumed chat.
func (h *Handler) sendTranscriptTail(ctx context.Context, b *bot.Bot, chatID int64, e *engine.Engine) {
	s := e.Transcript()
	if len(s.Messages) == 0 {
		return
	}
	last := s.Messages[len(s.Messages)-1]
	text := fmt.Sprintf("📖 %s\n\n%s", s.Title, last.Text)
	var markup models.ReplyMarkup
	if last.Sender == domain.SenderAssistant {
		markup = replyMarkup(e, last.SequenceIndex, true)
	}
	if err := tg.SendLongMessage(ctx, b, chatID, text, markup); err != nil {
		slog.Error("send transcript", "error", err, "chat_id", chatID)
	}
}

func (h *Handler) handleChatDelete(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	chatID, messageID := callbackMessage(update.CallbackQuery)
	id := strings.TrimPrefix(update.CallbackQuery.Data, chatDeletePrefix)
	if err := e.DeleteChat(ctx, id); err != nil {
		slog.Error("delete chat", "error", err, "chat_id", chatID, "session_id", id)
		answer(ctx, b, update.CallbackQuery, errorText(err))
		return
	}
	answer(ctx, b, update.CallbackQuery, "🗑 Deleted")

	h.sendChatsPage(ctx, b, chatID, e, 0, messageID)
}

func (h *Handler) handleChatNew(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}
	answer(ctx, b, update.CallbackQuery, "🔄 New chat started")

	e.NewChat(false)
	chatID, messageID := callbackMessage(update.CallbackQuery)
	h.sendChatsPage(ctx, b, chatID, e, 0, messageID)
}

func (h *Handler) handleChatsPage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}
	answer(ctx, b, update.CallbackQuery, "")

	page, _ := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, chatsPagePrefix+"_"))
	chatID, messageID := callbackMessage(update.CallbackQuery)
	h.sendChatsPage(ctx, b, chatID, e, page, messageID)
}
