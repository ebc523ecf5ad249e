package htmlfwd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// executor runs callbacks on the single logical thread that owns all
// endpoint, registry and bus state.
type executor interface {
	// Post queues fn. It reports false if the executor has stopped and
	// fn will never run.
	Post(fn func()) bool
}

// Loop is the event loop every state-mutating callback runs on: transport
// events, timer firings, observer commands, session attach and detach.
// Callbacks run one at a time, to completion, in the order posted.
type Loop struct {
	events  chan func()
	done    chan struct{}
	log     logrus.FieldLogger
	onPanic func(any)
}

func newLoop(queueSize int, log logrus.FieldLogger, onPanic func(any)) *Loop {
	return &Loop{
		events:  make(chan func(), queueSize),
		done:    make(chan struct{}),
		log:     log,
		onPanic: onPanic,
	}
}

// Post queues fn for the loop. It blocks while the queue is full, so it
// must not be called from a callback already running on the loop.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	queued := l.Post(func() {
		defer close(finished)
		fn()
	})
	if !queued {
		return ErrClientClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// The loop may have run fn just before stopping.
		select {
		case <-finished:
			return nil
		default:
			return ErrClientClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes callbacks until ctx is canceled. Pending callbacks left
// in the queue are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.events:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", fmt.Sprint(r)).Error("event loop callback panicked")
			if l.onPanic != nil {
				l.onPanic(r)
			}
		}
	}()
	fn()
}
