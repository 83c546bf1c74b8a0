package scheduler

import (
	"sync"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

// Dedup remembers which reminder slots were already handled, per chat.
// State is process-local: a restart forgets it.
type Dedup struct {
	mu   sync.Mutex
	sent map[int64]map[string]string // chat -> "HH:MM" -> "2006-01-02"
}

// NewDedup returns empty dedup state.
func NewDedup() *Dedup {
	return &Dedup{sent: make(map[int64]map[string]string)}
}

// Sent reports whether slot was already handled for chatID. Entries dated
// before slot.Date are dropped on the way.
func (d *Dedup) Sent(chatID int64, slot domain.Slot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	times, ok := d.sent[chatID]
	if !ok {
		return false
	}
	for t, date := range times {
		if date < slot.Date {
			delete(times, t)
		}
	}
	if len(times) == 0 {
		delete(d.sent, chatID)
		return false
	}
	return times[slot.Time] == slot.Date
}

// Mark records slot as handled for chatID.
func (d *Dedup) Mark(chatID int64, slot domain.Slot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	times, ok := d.sent[chatID]
	if !ok {
		times = make(map[string]string)
		d.sent[chatID] = times
	}
	times[slot.Time] = slot.Date
}

// Entries returns the number of remembered (chat, time) pairs.
func (d *Dedup) Entries() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, times := range d.sent {
		n += len(times)
	}
	return n
}
