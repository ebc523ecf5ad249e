package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	c := Fake(epoch)
	assert.True(t, c.Now().Equal(epoch))

	c.Advance(5 * time.Second)
	assert.True(t, c.Now().Equal(epoch.Add(5*time.Second)))
}

func TestFakeClockAfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(3*time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	assert.Equal(t, 0, fired, "fired before deadline")

	c.Advance(1 * time.Second)
	assert.Equal(t, 1, fired)

	c.Advance(time.Minute)
	assert.Equal(t, 1, fired, "one-shot timer fired twice")
}

func TestFakeClockStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	require.Equal(t, 1, c.PendingCount())

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second Stop should report false")
	assert.Equal(t, 0, c.PendingCount())

	c.Advance(time.Second)
	assert.False(t, fired)
}

func TestFakeClockStopAfterFire(t *testing.T) {
	c := Fake(epoch)
	timer := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	assert.False(t, timer.Stop())
}

func TestFakeClockDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestFakeClockCallbackSchedulesWithinAdvance(t *testing.T) {
	c := Fake(epoch)
	var fired []time.Duration
	c.AfterFunc(time.Second, func() {
		fired = append(fired, time.Second)
		c.AfterFunc(time.Second, func() { fired = append(fired, 2*time.Second) })
	})

	c.Advance(3 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fired)
}

func TestFakeClockCallbackSeesDeadline(t *testing.T) {
	c := Fake(epoch)
	var seen []time.Time
	c.AfterFunc(2*time.Second, func() {
		seen = append(seen, c.Now())
		c.AfterFunc(5*time.Second, func() { seen = append(seen, c.Now()) })
	})

	c.Advance(10 * time.Second)
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Equal(epoch.Add(2*time.Second)), "first callback saw %v", seen[0])
	assert.True(t, seen[1].Equal(epoch.Add(7*time.Second)), "nested callback saw %v", seen[1])
	assert.True(t, c.Now().Equal(epoch.Add(10*time.Second)))
}

func TestFakeClockCallbackStopsLaterTimer(t *testing.T) {
	c := Fake(epoch)
	var second *Timer
	secondFired := false
	c.AfterFunc(time.Second, func() { second.Stop() })
	second = c.AfterFunc(2*time.Second, func() { secondFired = true })

	c.Advance(5 * time.Second)
	assert.False(t, secondFired)
}

func TestFakeClockZeroDuration(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(0, func() { fired = true })
	assert.True(t, fired)
	assert.False(t, timer.Stop())
}
