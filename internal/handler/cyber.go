package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/sofia/internal/domain"
	"github.com/set-night/sofia/internal/middleware"
	tg "github.com/set-night/sofia/internal/telegram"
)

const (
	cyberLevelPrefix = "cyber_lvl_"
	cyberEndData     = "cyber_end"
	cyberExpertData  = "cyber_expert"
)

// cyberMenu offers the training levels, or the end button while a
// simulation runs.
func cyberMenu(level domain.CyberLevel, active bool) (string, *models.InlineKeyboardMarkup) {
	if active {
		return fmt.Sprintf("🛡 A %s simulation is running. Keep chatting, or end it for your report.", level), cyberEndKeyboard()
	}
	return "🛡 *Cyber Security Training*\n\n" +
			"📚 Learn: a step-by-step course.\n" +
			"🎭 Basic and Intermediate: the assistant plays a scammer. Don't get fooled, then get graded.",
		tg.InlineKeyboard(
			tg.ButtonRow(tg.InlineButton("📚 Learn", cyberLevelPrefix+domain.CyberLearn.String())),
			tg.ButtonRow(
				tg.InlineButton("🟢 Basic", cyberLevelPrefix+domain.CyberBasic.String()),
				tg.InlineButton("🟠 Intermediate", cyberLevelPrefix+domain.CyberIntermediate.String()),
			),
			tg.ButtonRow(tg.InlineButton("🔴 Expert (soon)", cyberExpertData)),
		)
}

func cyberEndKeyboard() *models.InlineKeyboardMarkup {
	return tg.InlineKeyboard(tg.ButtonRow(tg.InlineButton("🏁 Analyze & End", cyberEndData)))
}

// cyberReportText renders a graded simulation.
func cyberReportText(r domain.CyberReport) string {
	mark := "🔴"
	switch {
	case r.Score >= 80:
		mark = "🟢"
	case r.Score >= 50:
		mark = "🟡"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🛡 Security Report\n\n%s Score: %d/100\n", mark, r.Score)
	if r.Verdict != "" {
		fmt.Fprintf(&sb, "Verdict: %s\n", r.Verdict)
	}
	if r.Analysis != "" {
		fmt.Fprintf(&sb, "\n%s\n", r.Analysis)
	}
	if len(r.Tips) > 0 {
		sb.WriteString("\n💡 Tips:\n")
		for _, tip := range r.Tips {
			fmt.Fprintf(&sb, "• %s\n", tip)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) handleCyber(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	level, active := e.CyberLevel()
	text, markup := cyberMenu(level, active)
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      update.Message.Chat.ID,
		Text:        text,
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: markup,
	})
}

func (h *Handler) handleCyberLevel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	level, err := domain.ParseCyberLevel(strings.TrimPrefix(update.CallbackQuery.Data, cyberLevelPrefix))
	if err != nil {
		answer(ctx, b, update.CallbackQuery, "Unknown level")
		return
	}
	answer(ctx, b, update.CallbackQuery, "")
	chatID, messageID := callbackMessage(update.CallbackQuery)
	tg.EditMarkup(ctx, b, chatID, messageID, tg.EmptyKeyboard())

	if level.Simulated() {
		tg.SendText(ctx, b, chatID, fmt.Sprintf("🏁 Cyber Security Challenge Started: %s Level\n\n"+
			"The assistant is now a scammer. Defend yourself!\n"+
			"When you think you've caught them, tap Analyze & End.", level), cyberEndKeyboard())
	}

	stopTyping := tg.StartTyping(ctx, b, chatID)
	defer stopTyping()

	res, err := e.StartCyber(ctx, level)
	if err != nil {
		tg.SendText(ctx, b, chatID, errorText(err), nil)
		return
	}
	h.renderResult(ctx, b, chatID, e, res, true)
}

func (h *Handler) handleCyberEnd(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	e := middleware.GetEngine(ctx)
	if e == nil {
		return
	}

	if _, active := e.CyberLevel(); !active {
		answer(ctx, b, update.CallbackQuery, "No simulation is running.")
		return
	}
	answer(ctx, b, update.CallbackQuery, "Analyzing…")
	chatID, messageID := callbackMessage(update.CallbackQuery)
	tg.EditMarkup(ctx, b, chatID, messageID, tg.EmptyKeyboard())

	stopTyping := tg.StartTyping(ctx, b, chatID)
	defer stopTyping()

	report, res, err := e.EndCyber(ctx)
	switch {
	case err == nil:
		tg.SendText(ctx, b, chatID, cyberReportText(report), nil)
	case errors.Is(err, domain.ErrNoCyberGame):
		tg.SendText(ctx, b, chatID, errorText(err), nil)
		return
	default:
		h.tgLogger.LogError(err, "cyber report")
		tg.SendText(ctx, b, chatID, "❌ Error generating report.", nil)
	}
	h.renderResult(ctx, b, chatID, e, res, true)
}

func (h *Handler) handleCyberExpert(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		answer(ctx, b, update.CallbackQuery, "Expert level is coming soon.")
	}
}
