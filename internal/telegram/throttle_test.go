package telegram

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestThrottleBucketsPerUserAndEvent(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC))
	th := NewThrottle(clock, 1, 2)

	assert.True(t, th.Check(1, EventMessage).Allowed)
	d := th.Check(1, EventMessage)
	assert.False(t, d.Allowed)
	assert.True(t, d.Warn)
	assert.Equal(t, time.Second, d.Wait)

	assert.True(t, th.Check(1, EventCallback).Allowed)
	assert.True(t, th.Check(2, EventMessage).Allowed)

	clock.Advance(500 * time.Millisecond)
	assert.True(t, th.Check(1, EventCallback).Allowed)
	assert.False(t, th.Check(1, EventMessage).Allowed)

	clock.Advance(500 * time.Millisecond)
	assert.True(t, th.Check(1, EventMessage).Allowed)
}

func TestThrottleWarnsAtMostThreeTimes(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC))
	th := NewThrottle(clock, 1, 1)

	th.Check(1, EventMessage)
	var warnings int
	var abusive bool
	for range 12 {
		d := th.Check(1, EventMessage)
		if d.Warn {
			warnings++
		}
		abusive = abusive || d.Abusive
	}
	assert.Equal(t, 3, warnings)
	assert.True(t, abusive)
}

func TestThrottleStreakDecays(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC))
	th := NewThrottle(clock, 1, 1)

	th.Check(1, EventMessage)
	for range 4 {
		th.Check(1, EventMessage)
	}
	assert.False(t, th.Check(1, EventMessage).Warn)

	clock.Advance(time.Second)
	assert.True(t, th.Check(1, EventMessage).Allowed)
	clock.Advance(time.Second)
	assert.True(t, th.Check(1, EventMessage).Allowed)
	// streak dropped from 5 to 3, the next denial is the fourth
	assert.False(t, th.Check(1, EventMessage).Warn)
}
