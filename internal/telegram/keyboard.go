package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/domain"
)

// InlineButton creates a single inline keyboard button.
func InlineButton(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// InlineKeyboard creates an inline keyboard from rows of buttons.
func InlineKeyboard(rows ...[]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// EmptyKeyboard removes every button from a message.
func EmptyKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{}}
}

// ButtonRow creates a row of inline buttons.
func ButtonRow(buttons ...models.InlineKeyboardButton) []models.InlineKeyboardButton {
	return buttons
}

// PaginationRow creates a pagination row with prev/next buttons.
func PaginationRow(currentPage, totalPages int, callbackPrefix string) []models.InlineKeyboardButton {
	var row []models.InlineKeyboardButton

	if currentPage > 0 {
		row = append(row, InlineButton("⬅️", fmt.Sprintf("%s_%d", callbackPrefix, currentPage-1)))
	}

	row = append(row, InlineButton(
		fmt.Sprintf("%d/%d", currentPage+1, totalPages),
		"cur",
	))

	if currentPage < totalPages-1 {
		row = append(row, InlineButton("➡️", fmt.Sprintf("%s_%d", callbackPrefix, currentPage+1)))
	}

	return row
}

// Feedback callbacks are "fb_<judgment>_<index>"; speak is "speak_<index>".
const (
	FeedbackPrefix = "fb_"
	SpeakPrefix    = "speak_"
)

// FeedbackKeyboard renders judgment buttons for one assistant reply, marking
// the current judgment.
func FeedbackKeyboard(idx int, current domain.Judgment, speak bool) *models.InlineKeyboardMarkup {
	label := func(j domain.Judgment, icon string) string {
		if j == current {
			return "• " + icon
		}
		return icon
	}
	row := ButtonRow(
		InlineButton(label(domain.JudgmentLike, "👍"), FeedbackData(domain.JudgmentLike, idx)),
		InlineButton(label(domain.JudgmentDislike, "👎"), FeedbackData(domain.JudgmentDislike, idx)),
		InlineButton("↺", FeedbackData(domain.JudgmentNeutral, idx)),
	)
	if speak {
		row = append(row, InlineButton("🔊", SpeakPrefix+strconv.Itoa(idx)))
	}
	return InlineKeyboard(row)
}

func FeedbackData(j domain.Judgment, idx int) string {
	return fmt.Sprintf("%s%s_%d", FeedbackPrefix, j, idx)
}

// ParseFeedbackData is the inverse of FeedbackData.
func ParseFeedbackData(data string) (domain.Judgment, int, error) {
	rest, ok := strings.CutPrefix(data, FeedbackPrefix)
	if !ok {
		return "", 0, fmt.Errorf("not a feedback callback: %q", data)
	}
	kind, num, ok := strings.Cut(rest, "_")
	if !ok {
		return "", 0, fmt.Errorf("malformed feedback callback: %q", data)
	}
	j, err := domain.ParseJudgment(kind)
	if err != nil {
		return "", 0, err
	}
	idx, err := strconv.Atoi(num)
	if err != nil {
		return "", 0, fmt.Errorf("parse feedback index: %w", err)
	}
	return j, idx, nil
}
