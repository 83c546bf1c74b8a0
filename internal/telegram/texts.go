package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BlackMaN314/daily-routine-bot/internal/backend"
	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
	"github.com/BlackMaN314/daily-routine-bot/internal/scheduler"
)

// UI texts in English
const (
	startText = "✅ You are signed in!\n\n" +
		"👋 I am DailyRoutine Bot. I help you keep daily habits and reach your goals 🎯\n\n" +
		"🔔 Reminders at the times you choose\n" +
		"📋 Today's habits with /today\n" +
		"📊 Weekly and monthly progress with /progress\n" +
		"⚙️ Reminder times and quiet mode in /settings"
	startFailedText = "👋 I am DailyRoutine Bot.\n\n" +
		"I could not sign you in automatically. You can register in the web app and send /start again."
	helpText = "Use /today to see your habits, /new to add one, /progress to review how it goes and /settings to set up reminders."

	todayTitle   = "📋 Your habits for today:"
	noHabitsText = "📝 You have no habits yet.\n\nCreate your first one in the web app 🚀"
	allDoneText  = "🔥 Everything is done for today!"

	settingsTitle = "⚙️ Settings"
	askTimesText  = "Send reminder times as HH:MM, separated by commas. Example: 08:00, 20:30"
	askTZText     = "Send your timezone as Region/City. Example: Europe/Moscow"
	badTimesText  = "Invalid format. Example: 08:00, 20:30"
	badTZText     = "Invalid timezone. Example: Europe/Moscow"

	askHabitText  = "Send the name of the new habit."
	longHabitText = "Too long. Please keep the name under 100 characters."
	maxHabitTitle = 100
	badGoalText   = "Send a positive whole number, for example 30."
	askUnitText   = "Pick a unit or send your own, for example km."
	badUnitText   = "Send a unit up to 20 characters, for example km."
	maxUnitLen    = 20
	staleFlowText = "This step has expired. Start again with /new."

	badAmountText    = "Send a positive number, for example 0.5 or 2."
	remindersOffText = "🔕 Reminders are off. You can turn them back on in settings."

	progressHabitsEmpty = "You have no habits yet 😔"

	authErrorText        = "🔐 Authorization problem. Send /start to sign in again."
	unreachableErrorText = "📡 Could not reach the server. Please try again later."
	notFoundErrorText    = "❌ Not found. The list may be out of date."
	genericErrorText     = "❌ Something went wrong. Please try again later."
)

func throttledText(wait time.Duration) string {
	return fmt.Sprintf("⏳ Too many requests. Wait %.1f s.", wait.Seconds())
}

// errorText picks user-facing copy for a gateway failure.
func errorText(err error) string {
	switch backend.KindOf(err) {
	case backend.KindAuthUnavailable, backend.KindAuthExpired:
		return authErrorText
	case backend.KindUnreachable:
		return unreachableErrorText
	case backend.KindBackend:
		switch backend.StatusOf(err) {
		case http.StatusNotFound:
			return notFoundErrorText
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			if detail := backendDetail(err); detail != "" {
				return "❌ " + detail
			}
		}
	}
	return genericErrorText
}

// backendDetail extracts the "detail" message a backend error body carries,
// falling back to the raw body when it is short plain text.
func backendDetail(err error) string {
	var e *backend.Error
	if !errors.As(err, &e) {
		return ""
	}
	body := strings.TrimSpace(e.Body)
	var parsed struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal([]byte(body), &parsed) == nil {
		if s, ok := parsed.Detail.(string); ok {
			return s
		}
		return ""
	}
	if len(body) > 200 {
		return ""
	}
	return body
}

func startKeyboard(webAppURL string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("👤 Open web app", webAppURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Today", domain.CallbackOpenToday),
			tgbotapi.NewInlineKeyboardButtonData("📊 Progress", cbProgress+string(domain.PeriodWeek)),
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Settings", cbSettings),
		),
	)
}

func linkKeyboard(label, url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(label, url)),
	)
}

// todayView renders the habit list with one toggle button per habit.
func todayView(habits []domain.Habit, webAppURL string) (string, tgbotapi.InlineKeyboardMarkup) {
	if len(habits) == 0 {
		return noHabitsText, linkKeyboard("➕ Create a habit", webAppURL)
	}
	pending, completed := domain.SplitHabits(habits)

	var b strings.Builder
	b.WriteString(todayTitle)
	b.WriteString("\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, h := range pending {
		b.WriteString("\n❌ ")
		b.WriteString(habitLine(h))
		rows = append(rows, habitRow(h))
	}
	for _, h := range completed {
		b.WriteString("\n✅ ")
		b.WriteString(habitLine(h))
		rows = append(rows, habitRow(h))
	}
	if len(pending) == 0 {
		b.WriteString("\n\n")
		b.WriteString(allDoneText)
	} else {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Mark all done", domain.CallbackCompleteAll),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", domain.CallbackOpenToday),
	))
	return b.String(), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// habitRow is a toggle button, an amount button for pending measurable
// habits and a delete button.
func habitRow(h domain.Habit) []tgbotapi.InlineKeyboardButton {
	sid := strconv.FormatInt(h.ID, 10)
	toggle := tgbotapi.NewInlineKeyboardButtonData("✅ "+h.Title, cbDone+sid)
	if h.Completed {
		toggle = tgbotapi.NewInlineKeyboardButtonData("↩️ "+h.Title, cbUndo+sid)
	}
	row := tgbotapi.NewInlineKeyboardRow(toggle)
	if !h.Completed && h.Measurable() {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✏️", cbAmount+sid))
	}
	return append(row, tgbotapi.NewInlineKeyboardButtonData("🗑", cbDelete+sid))
}

func todayButton() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Today", domain.CallbackOpenToday)),
	)
}

func settingsButton() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⚙️ Settings", cbSettings)),
	)
}

func amountPromptText(h domain.Habit) string {
	return fmt.Sprintf("✏️ %s: %s/%s %s\n\nSend the amount to add, for example 0.5 or 2.",
		h.Title, scheduler.FormatAmount(h.Progress), scheduler.FormatAmount(h.Goal), h.Unit)
}

func amountAddedText(amount float64, h domain.Habit) string {
	text := fmt.Sprintf("✅ Added %s %s to %s\n📊 Progress: %s/%s %s",
		scheduler.FormatAmount(amount), h.Unit, h.Title,
		scheduler.FormatAmount(h.Progress), scheduler.FormatAmount(h.Goal), h.Unit)
	if h.Goal > 0 {
		text += fmt.Sprintf(" (%d%%)", int(h.Progress/h.Goal*100))
	}
	if h.Completed {
		text += "\n\n🎉 Habit done!"
		if h.Streak > 0 {
			text += fmt.Sprintf(" 🔥 Streak: %d days", h.Streak)
		}
	}
	return text
}

func habitKindText(title string) string {
	return fmt.Sprintf("📝 %s\n\nHow do you track it?", title)
}

func habitKindKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✔️ Done or not", cbHabitKind+kindCheck)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔢 By amount", cbHabitKind+kindCount)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⏱️ By time", cbHabitKind+kindTime)),
	)
}

func askGoalText(timed bool) string {
	if timed {
		return "Send the daily goal, for example 30 (minutes)."
	}
	return "Send the daily goal, for example 8 (glasses, pages, km)."
}

// habitUnitKeyboard offers the stored time units for timed habits. The
// empty unit skips the step.
func habitUnitKeyboard(timed bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if timed {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏱️ Minutes", cbHabitUnit+backend.UnitMinutes),
			tgbotapi.NewInlineKeyboardButtonData("⏱️ Hours", cbHabitUnit+backend.UnitHours),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⏭️ Skip", cbHabitUnit),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

var periodNames = map[domain.Period]string{
	domain.PeriodToday: "today",
	domain.PeriodWeek:  "the week",
	domain.PeriodMonth: "the month",
}

// progressView renders a progress report with period switches.
func progressView(p domain.Progress) (string, tgbotapi.InlineKeyboardMarkup) {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Progress for %s:\n\n", periodNames[p.Period])
	if len(p.Habits) == 0 {
		b.WriteString(progressHabitsEmpty)
	} else {
		for _, h := range p.Habits {
			fmt.Fprintf(&b, "%s %s: %d/%d\n", h.Emoji, h.Title, h.Completed, h.Total)
		}
		b.WriteString("--------------------\n")
		fmt.Fprintf(&b, "Overall: %d/%d (%d%%)", p.Completed, p.Total, p.Percent())
		if p.BestStreak > 0 {
			fmt.Fprintf(&b, "\n🔥 Best streak: %s (%d days)", p.BestTitle, p.BestStreak)
		}
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Today", cbProgress+string(domain.PeriodToday)),
			tgbotapi.NewInlineKeyboardButtonData("📆 Week", cbProgress+string(domain.PeriodWeek)),
			tgbotapi.NewInlineKeyboardButtonData("📈 Month", cbProgress+string(domain.PeriodMonth)),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Today's habits", domain.CallbackOpenToday)),
	)
	return b.String(), kb
}

func habitLine(h domain.Habit) string {
	emoji := h.Emoji
	if emoji == "" {
		emoji = domain.DefaultHabitEmoji
	}
	line := emoji + " " + h.Title
	if h.Unit != "" {
		line += fmt.Sprintf(" (%s/%s %s)", scheduler.FormatAmount(h.Progress), scheduler.FormatAmount(h.Goal), h.Unit)
	}
	if h.Streak > 0 {
		line += fmt.Sprintf(" 🔥%d", h.Streak)
	}
	return line
}

func settingsView(s domain.NotificationSettings) (string, tgbotapi.InlineKeyboardMarkup) {
	times := "none"
	if len(s.NotifyTimes) > 0 {
		times = strings.Join(s.NotifyTimes, ", ")
	}
	dnd := "off"
	toggle := "🌙 Turn on do not disturb"
	if s.DoNotDisturb {
		dnd = "on"
		toggle = "🔔 Turn off do not disturb"
	}
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}

	text := fmt.Sprintf("%s\n\n• Reminders: %s\n• Timezone: %s\n• Do not disturb: %s",
		settingsTitle, times, tz, dnd)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🕓 Reminder times", cbSetTimes),
			tgbotapi.NewInlineKeyboardButtonData("🌍 Timezone", cbSetTZ),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(toggle, cbDNDToggle)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Today", domain.CallbackOpenToday)),
	)
	return text, kb
}
