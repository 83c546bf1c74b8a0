package scheduler

import (
	"strconv"
	"strings"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

const (
	reminderTitle   = "⏰ Habit reminder:"
	completedTitle  = "✅ Done:"
	encouragement   = "💪 You've got this!"
	openListText    = "📋 Open list"
	completeAllText = "✅ Mark all done"
	disableText     = "🔕 Turn off reminders"
)

// ComposeReminder renders the reminder for habits: pending ones first,
// completed ones under their own heading, encouragement last.
func ComposeReminder(habits []domain.Habit) (string, domain.Keyboard) {
	pending, completed := domain.SplitHabits(habits)

	var b strings.Builder
	b.WriteString(reminderTitle)
	b.WriteString("\n\n")

	for _, h := range pending {
		b.WriteString(habitEmoji(h))
		b.WriteString(" ")
		b.WriteString(h.Title)
		if h.Unit != "" {
			b.WriteString(" — ")
			b.WriteString(FormatAmount(h.Goal))
			b.WriteString(" ")
			b.WriteString(h.Unit)
		}
		b.WriteString("\n")
	}

	if len(completed) > 0 {
		if len(pending) > 0 {
			b.WriteString("\n")
		}
		b.WriteString(completedTitle)
		b.WriteString("\n")
		for _, h := range completed {
			b.WriteString("✅ ")
			b.WriteString(habitEmoji(h))
			b.WriteString(" ")
			b.WriteString(h.Title)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(encouragement)

	kb := domain.Keyboard{
		{{Text: openListText, CallbackData: domain.CallbackOpenToday}},
	}
	if len(habits) > 0 {
		kb = append(kb, []domain.Button{{Text: completeAllText, CallbackData: domain.CallbackCompleteAll}})
	}
	kb = append(kb, []domain.Button{{Text: disableText, CallbackData: domain.CallbackDisableReminders}})
	return b.String(), kb
}

// FormatAmount prints a goal without trailing zeros: 5, 1.5.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func habitEmoji(h domain.Habit) string {
	if h.Emoji == "" {
		return domain.DefaultHabitEmoji
	}
	return h.Emoji
}
