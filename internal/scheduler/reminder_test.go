package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

func TestComposeReminder(t *testing.T) {
	text, kb := ComposeReminder([]domain.Habit{
		{Title: "Water", Goal: 1.5, Unit: "l"},
		{Title: "Read", Emoji: "📚", Completed: true},
	})

	want := "⏰ Habit reminder:\n\n" +
		"📌 Water — 1.5 l\n" +
		"\n✅ Done:\n" +
		"✅ 📚 Read\n" +
		"\n💪 You've got this!"
	assert.Equal(t, want, text)
	require.Len(t, kb, 3)
	assert.Equal(t, domain.CallbackDisableReminders, kb[2][0].CallbackData)
}

func TestComposeReminderAllCompleted(t *testing.T) {
	text, _ := ComposeReminder([]domain.Habit{{Title: "Read", Completed: true}})
	assert.Equal(t, "⏰ Habit reminder:\n\n✅ Done:\n✅ 📌 Read\n\n💪 You've got this!", text)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "5", FormatAmount(5))
	assert.Equal(t, "1.5", FormatAmount(1.5))
}
