package domain

// Button is a platform-neutral inline button. Exactly one of URL and
// CallbackData is expected to be set.
type Button struct {
	Text         string
	URL          string
	CallbackData string
}

// Keyboard is a grid of inline buttons, row by row.
type Keyboard [][]Button

// Empty reports whether the keyboard has no buttons.
func (k Keyboard) Empty() bool {
	for _, row := range k {
		if len(row) > 0 {
			return false
		}
	}
	return true
}

// Callback data shared by reminder messages and the chat router.
const (
	CallbackOpenToday        = "back_today"
	CallbackCompleteAll      = "morning_complete_all"
	CallbackDisableReminders = "morning_disable"
)
