// Package clock abstracts the two time operations the connection manager
// needs, reading the wall clock and scheduling a callback, so that retry
// and keepalive timers can be driven deterministically in tests.
//
// Production code uses Real(). Tests use Fake(), whose time only moves
// when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	c.AfterFunc(10*time.Second, retry)
//	c.Advance(10 * time.Second) // retry runs here, in this goroutine
package clock

import "time"

// Clock is the time source used by endpoints and timer slots.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer cancels
	// the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the call from running. It reports whether the call was
// still pending; stopping a fired or stopped timer returns false.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stopFunc: timer.Stop}
}
