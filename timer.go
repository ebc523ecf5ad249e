package htmlfwd

import (
	"time"

	"github.com/htmlfwd/go-client/internal/clock"
)

// timerSlot owns at most one pending timer for a single purpose (retry,
// keepalive). Arming the slot cancels whatever was pending before.
//
// Firings are delivered through the executor. A timer that fired on the
// clock's goroutine but was canceled before its callback reached the
// loop is discarded by comparing generations, so Stop guarantees that
// no callback for an earlier arming runs afterwards.
type timerSlot struct {
	clock clock.Clock
	exec  executor

	timer *clock.Timer
	gen   uint64
}

func newTimerSlot(c clock.Clock, exec executor) *timerSlot {
	return &timerSlot{clock: c, exec: exec}
}

// Reset cancels any pending timer and arms a new one that runs fn on the
// executor after d.
func (s *timerSlot) Reset(d time.Duration, fn func()) {
	s.Stop()
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() {
		s.exec.Post(func() {
			if s.gen != gen {
				return
			}
			s.timer = nil
			fn()
		})
	})
}

// Stop cancels the pending timer. Stopping an idle slot is a no-op.
func (s *timerSlot) Stop() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a timer is armed and has not yet run.
func (s *timerSlot) Pending() bool {
	return s.timer != nil
}
