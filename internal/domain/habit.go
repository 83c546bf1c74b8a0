package domain

// Habit types as shown by the bot.
const (
	HabitQuantity = "quantity"
	HabitBoolean  = "boolean"
)

// DefaultHabitEmoji is used when the backend provides no icon.
const DefaultHabitEmoji = "📌"

// Habit is a habit resource as the bot presents it.
type Habit struct {
	ID        int64
	Title     string
	Emoji     string
	Type      string
	Goal      float64
	Progress  float64
	Unit      string
	Completed bool
	Streak    int
}

// Measurable reports whether partial amounts make sense for h.
func (h Habit) Measurable() bool {
	return h.Type == HabitQuantity && (h.Unit != "" || h.Goal > 1)
}

// NotificationSettings is the backend-owned reminder configuration of a user.
type NotificationSettings struct {
	NotifyTimes  []string
	DoNotDisturb bool
	Timezone     string
}

// SplitHabits partitions habits into pending and completed, keeping order.
func SplitHabits(habits []Habit) (pending, completed []Habit) {
	for _, h := range habits {
		if h.Completed {
			completed = append(completed, h)
		} else {
			pending = append(pending, h)
		}
	}
	return pending, completed
}
