package telegram

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Event is the kind of update being throttled.
type Event int

const (
	EventMessage Event = iota
	EventCallback
)

const (
	maxWarnings   = 3
	abusiveStreak = 10
)

// Decision is the outcome of a throttle check.
type Decision struct {
	Allowed bool
	Warn    bool          // tell the user to slow down
	Abusive bool          // streak long enough to log
	Wait    time.Duration // until the next event would pass
}

type throttleKey struct {
	userID int64
	event  Event
}

// Throttle is a per-user token bucket, separate for messages and callbacks.
// Denied events count towards a warning streak that decays by one with
// every allowed event.
type Throttle struct {
	clock    clockwork.Clock
	limits   map[Event]rate.Limit
	mu       sync.Mutex
	limiters map[throttleKey]*rate.Limiter
	streak   map[int64]int
}

// NewThrottle allows messagesPerSec messages and callbacksPerSec callbacks per user.
func NewThrottle(clock clockwork.Clock, messagesPerSec, callbacksPerSec float64) *Throttle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Throttle{
		clock: clock,
		limits: map[Event]rate.Limit{
			EventMessage:  rate.Limit(messagesPerSec),
			EventCallback: rate.Limit(callbacksPerSec),
		},
		limiters: make(map[throttleKey]*rate.Limiter),
		streak:   make(map[int64]int),
	}
}

// Check consumes one token for the user's event kind.
func (t *Throttle) Check(userID int64, ev Event) Decision {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	key := throttleKey{userID: userID, event: ev}
	lim, ok := t.limiters[key]
	if !ok {
		lim = rate.NewLimiter(t.limits[ev], 1)
		t.limiters[key] = lim
	}

	if lim.AllowN(now, 1) {
		if t.streak[userID] > 0 {
			t.streak[userID]--
		}
		return Decision{Allowed: true}
	}

	t.streak[userID]++
	n := t.streak[userID]

	r := lim.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)

	return Decision{
		Warn:    n <= maxWarnings,
		Abusive: n > abusiveStreak,
		Wait:    wait,
	}
}
