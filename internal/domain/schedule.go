package domain

import "time"

// Slot identifies one reminder occurrence: a configured time of day on a
// calendar date, both in the user's timezone.
type Slot struct {
	Time string // "HH:MM"
	Date string // "2006-01-02"
}

// DueSlot reports whether one of the configured reminder times matches the
// minute of nowUTC in the given location. Malformed configured times are ignored.
func DueSlot(nowUTC time.Time, loc *time.Location, notifyTimes []string) (Slot, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := nowUTC.In(loc)
	current := local.Format("15:04")
	for _, t := range notifyTimes {
		norm, err := NormalizeHHMM(t)
		if err != nil {
			continue
		}
		if norm == current {
			return Slot{Time: current, Date: local.Format(time.DateOnly)}, true
		}
	}
	return Slot{}, false
}

// UntilNextMinute returns the sleep needed to wake at the next wall-clock
// minute boundary, never less than floor.
func UntilNextMinute(now time.Time, floor time.Duration) time.Duration {
	d := time.Duration(60-now.Second()) * time.Second
	if d < floor {
		return floor
	}
	return d
}
