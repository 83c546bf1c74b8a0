package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/BlackMaN314/daily-routine-bot/internal/backend"
	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	_, _ = r.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendWithMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// edit replaces a bot message in place. An edit that changes nothing is not a failure.
func (r *Router) edit(chatID int64, msgID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	_, err := r.bot.Send(tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, markup))
	if err != nil && !isNotModified(err) {
		r.log.Warn("edit failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// isNotModified matches Telegram's 400 for an edit with identical content.
// Other 400s share the code, so the description narrows it down.
func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "message is not modified")
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}

func (r *Router) answerAlert(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallbackWithAlert(id, text))
	return err
}

func (r *Router) reportError(chatID int64, op string, u backend.User, err error) {
	r.log.Warn(op+" failed", zap.Int64("telegramID", u.TelegramID), zap.String("kind", backend.KindOf(err).String()), zap.Error(err))
	r.sendText(chatID, errorText(err))
}

// --- Core commands ---

// handleStart signs the user in. Known users get their token pair rotated;
// new users, or users whose rotation failed, are registered afresh.
func (r *Router) handleStart(ctx context.Context, chatID int64, u backend.User) {
	u.Profile.PhotoURL = r.photoURL(u.TelegramID)

	if err := r.signIn(ctx, u); err != nil {
		r.log.Error("sign in failed", zap.Int64("telegramID", u.TelegramID), zap.Error(err))
		r.sendWithMarkup(chatID, startFailedText, linkKeyboard("📝 Register", r.webAppURL))
		return
	}
	r.sendWithMarkup(chatID, startText, startKeyboard(r.webAppURL))
}

func (r *Router) signIn(ctx context.Context, u backend.User) error {
	refresh, err := r.store.GetRefreshToken(ctx, u.TelegramID)
	if err == nil && refresh != "" {
		_, rotErr := r.api.RotateTokens(ctx, u.TelegramID)
		if rotErr == nil {
			if err := r.store.SaveAll(ctx, &domain.Credentials{TelegramID: u.TelegramID, Profile: u.Profile}); err != nil {
				r.log.Warn("profile update failed", zap.Int64("telegramID", u.TelegramID), zap.Error(err))
			}
			return nil
		}
		r.log.Info("token rotation failed, registering", zap.Int64("telegramID", u.TelegramID), zap.Error(rotErr))
	}
	_, err = r.api.Register(ctx, u)
	return err
}

func (r *Router) sendToday(ctx context.Context, chatID int64, u backend.User) {
	habits, err := r.api.Habits(ctx, u)
	if err != nil {
		r.reportError(chatID, "habits", u, err)
		return
	}
	text, kb := todayView(habits, r.webAppURL)
	r.sendWithMarkup(chatID, text, kb)
}

func (r *Router) editToday(ctx context.Context, chatID int64, msgID int, u backend.User) {
	habits, err := r.api.Habits(ctx, u)
	if err != nil {
		r.reportError(chatID, "habits", u, err)
		return
	}
	text, kb := todayView(habits, r.webAppURL)
	r.edit(chatID, msgID, text, kb)
}

func (r *Router) sendSettings(ctx context.Context, chatID int64, u backend.User) {
	s, err := r.api.Settings(ctx, u)
	if err != nil {
		r.reportError(chatID, "settings", u, err)
		return
	}
	text, kb := settingsView(s)
	r.sendWithMarkup(chatID, text, kb)
}

func (r *Router) editSettings(ctx context.Context, chatID int64, msgID int, u backend.User) {
	s, err := r.api.Settings(ctx, u)
	if err != nil {
		r.reportError(chatID, "settings", u, err)
		return
	}
	text, kb := settingsView(s)
	r.edit(chatID, msgID, text, kb)
}

// --- Habit callbacks ---

func (r *Router) handleMark(ctx context.Context, cbID string, chatID int64, msgID int, u backend.User, rawID string, done bool) {
	habitID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		_ = r.answerCallback(cbID, "")
		return
	}

	var h domain.Habit
	if done {
		h, err = r.api.CompleteHabit(ctx, u, habitID)
	} else {
		h, err = r.api.UndoHabit(ctx, u, habitID)
	}
	if err != nil {
		r.log.Warn("mark habit failed", zap.Int64("telegramID", u.TelegramID), zap.Int64("habitID", habitID), zap.Error(err))
		_ = r.answerAlert(cbID, errorText(err))
		return
	}

	note := "↩️ " + h.Title
	if done {
		note = "✅ " + h.Title
	}
	_ = r.answerCallback(cbID, note)
	r.editToday(ctx, chatID, msgID, u)
}

func (r *Router) handleCompleteAll(ctx context.Context, cbID string, chatID int64, msgID int, u backend.User) {
	n, err := r.api.CompleteAll(ctx, u)
	if err != nil && n == 0 {
		r.log.Warn("complete all failed", zap.Int64("telegramID", u.TelegramID), zap.Error(err))
		_ = r.answerAlert(cbID, errorText(err))
		return
	}
	if err != nil {
		r.log.Warn("complete all stopped early", zap.Int64("telegramID", u.TelegramID), zap.Int("done", n), zap.Error(err))
	}
	_ = r.answerCallback(cbID, "🔥 Marked done: "+strconv.Itoa(n))
	r.editToday(ctx, chatID, msgID, u)
}

func (r *Router) handleDelete(ctx context.Context, cbID string, chatID int64, msgID int, u backend.User, rawID string) {
	habitID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		_ = r.answerCallback(cbID, "")
		return
	}
	h, err := r.api.Habit(ctx, u, habitID)
	if err == nil {
		err = r.api.DeleteHabit(ctx, u, habitID)
	}
	if err != nil {
		r.log.Warn("delete habit failed", zap.Int64("telegramID", u.TelegramID), zap.Int64("habitID", habitID), zap.Error(err))
		_ = r.answerAlert(cbID, errorText(err))
		return
	}
	_ = r.answerCallback(cbID, "🗑 "+h.Title)
	r.editToday(ctx, chatID, msgID, u)
}

// handleAmountPrompt starts partial progress input for a measurable habit.
func (r *Router) handleAmountPrompt(ctx context.Context, cbID string, chatID int64, u backend.User, rawID string) {
	habitID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		_ = r.answerCallback(cbID, "")
		return
	}
	h, err := r.api.Habit(ctx, u, habitID)
	if err != nil {
		_ = r.answerAlert(cbID, errorText(err))
		return
	}
	_ = r.answerCallback(cbID, "")
	r.setPending(chatID, pending{step: pendingAmount, habitID: habitID})
	r.sendText(chatID, amountPromptText(h))
}

func (r *Router) addAmount(ctx context.Context, chatID int64, u backend.User, habitID int64, text string) {
	amount, err := domain.ParseAmount(text)
	if err != nil {
		r.sendText(chatID, badAmountText)
		return
	}
	r.clearPending(chatID)
	h, err := r.api.AddProgress(ctx, u, habitID, amount)
	if err != nil {
		r.reportError(chatID, "add progress", u, err)
		return
	}
	r.sendWithMarkup(chatID, amountAddedText(amount, h), todayButton())
}

// --- Habit creation ---

// handleNewHabit takes the title from the command argument, or asks for it,
// then offers the habit kinds.
func (r *Router) handleNewHabit(chatID int64, title string) {
	if title == "" {
		r.setPending(chatID, pending{step: pendingHabit})
		r.sendText(chatID, askHabitText)
		return
	}
	if len([]rune(title)) > maxHabitTitle {
		r.setPending(chatID, pending{step: pendingHabit})
		r.sendText(chatID, longHabitText)
		return
	}
	r.setPending(chatID, pending{step: pendingHabitKind, draft: backend.NewHabit{Title: title, Beneficial: true}})
	r.sendWithMarkup(chatID, habitKindText(title), habitKindKeyboard())
}

func (r *Router) handleHabitKind(ctx context.Context, cbID string, chatID int64, u backend.User, kind string) {
	p := r.getPending(chatID)
	if p.step != pendingHabitKind {
		_ = r.answerAlert(cbID, staleFlowText)
		return
	}
	_ = r.answerCallback(cbID, "")

	switch kind {
	case kindCheck:
		p.draft.Value = 1
		r.createHabit(ctx, chatID, u, p.draft)
	case kindCount, kindTime:
		p.draft.Timed = kind == kindTime
		p.step = pendingHabitGoal
		r.setPending(chatID, p)
		r.sendText(chatID, askGoalText(p.draft.Timed))
	}
}

func (r *Router) handleHabitGoal(chatID int64, p pending, text string) {
	goal, err := domain.ParseGoal(text)
	if err != nil {
		r.sendText(chatID, badGoalText)
		return
	}
	p.draft.Value = goal
	p.step = pendingHabitUnit
	r.setPending(chatID, p)
	r.sendWithMarkup(chatID, askUnitText, habitUnitKeyboard(p.draft.Timed))
}

// handleHabitUnit takes a unit from a button; an empty unit means none.
func (r *Router) handleHabitUnit(ctx context.Context, cbID string, chatID int64, u backend.User, unit string) {
	p := r.getPending(chatID)
	if p.step != pendingHabitUnit {
		_ = r.answerAlert(cbID, staleFlowText)
		return
	}
	_ = r.answerCallback(cbID, "")
	p.draft.Unit = unit
	r.createHabit(ctx, chatID, u, p.draft)
}

func (r *Router) createHabit(ctx context.Context, chatID int64, u backend.User, draft backend.NewHabit) {
	r.clearPending(chatID)
	h, err := r.api.CreateHabit(ctx, u, draft)
	if err != nil {
		r.reportError(chatID, "create habit", u, err)
		return
	}
	r.sendWithMarkup(chatID, "➕ "+h.Title, todayButton())
}

// --- Progress ---

func (r *Router) sendProgress(ctx context.Context, chatID int64, u backend.User, period domain.Period) {
	p, err := r.api.Progress(ctx, u, period)
	if err != nil {
		r.reportError(chatID, "progress", u, err)
		return
	}
	text, kb := progressView(p)
	r.sendWithMarkup(chatID, text, kb)
}

func (r *Router) handleProgressPeriod(ctx context.Context, cbID string, chatID int64, msgID int, u backend.User, raw string) {
	period, ok := domain.ParsePeriod(raw)
	if !ok {
		_ = r.answerCallback(cbID, "")
		return
	}
	p, err := r.api.Progress(ctx, u, period)
	if err != nil {
		_ = r.answerAlert(cbID, errorText(err))
		return
	}
	_ = r.answerCallback(cbID, "")
	text, kb := progressView(p)
	r.edit(chatID, msgID, text, kb)
}

// --- Settings callbacks ---

func (r *Router) handleDNDToggle(ctx context.Context, cbID string, chatID int64, msgID int, u backend.User) {
	cur, err := r.api.Settings(ctx, u)
	if err != nil {
		_ = r.answerAlert(cbID, errorText(err))
		return
	}
	updated, err := r.api.SetDoNotDisturb(ctx, u, !cur.DoNotDisturb)
	if err != nil {
		_ = r.answerAlert(cbID, errorText(err))
		return
	}
	_ = r.answerCallback(cbID, "")
	text, kb := settingsView(updated)
	r.edit(chatID, msgID, text, kb)
}

// handleDisableReminders turns reminders off from the reminder message itself.
func (r *Router) handleDisableReminders(ctx context.Context, cbID string, chatID int64, msgID int, u backend.User) {
	if _, err := r.api.SetDoNotDisturb(ctx, u, true); err != nil {
		r.log.Warn("disable reminders failed", zap.Int64("telegramID", u.TelegramID), zap.Error(err))
		_ = r.answerAlert(cbID, errorText(err))
		return
	}
	_ = r.answerCallback(cbID, "")
	r.edit(chatID, msgID, remindersOffText, settingsButton())
}

// --- Free-form dispatcher ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, u backend.User, text string) {
	p := r.getPending(chatID)
	switch p.step {
	case pendingTimes:
		times, err := domain.ParseTimesList(text)
		if err != nil {
			r.sendText(chatID, badTimesText)
			return
		}
		r.clearPending(chatID)
		s, err := r.api.SetNotifyTimes(ctx, u, times)
		if err != nil {
			r.reportError(chatID, "set notify times", u, err)
			return
		}
		out, kb := settingsView(s)
		r.sendWithMarkup(chatID, out, kb)

	case pendingTZ:
		tz, err := domain.ValidateTZ(text)
		if err != nil {
			r.sendText(chatID, badTZText)
			return
		}
		r.clearPending(chatID)
		s, err := r.api.SetTimezone(ctx, u, tz)
		if err != nil {
			r.reportError(chatID, "set timezone", u, err)
			return
		}
		out, kb := settingsView(s)
		r.sendWithMarkup(chatID, out, kb)

	case pendingHabit:
		r.handleNewHabit(chatID, text)

	case pendingHabitKind:
		r.sendWithMarkup(chatID, habitKindText(p.draft.Title), habitKindKeyboard())

	case pendingHabitGoal:
		r.handleHabitGoal(chatID, p, text)

	case pendingHabitUnit:
		unit := strings.TrimSpace(text)
		if unit == "" || len([]rune(unit)) > maxUnitLen {
			r.sendText(chatID, badUnitText)
			return
		}
		p.draft.Unit = unit
		r.createHabit(ctx, chatID, u, p.draft)

	case pendingAmount:
		r.addAmount(ctx, chatID, u, p.habitID, text)

	default:
		r.sendText(chatID, helpText)
	}
}
