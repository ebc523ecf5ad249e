package htmlfwd

import (
	"context"

	"github.com/htmlfwd/go-client/internal/clock"
	"github.com/sirupsen/logrus"
)

// SpecStore persists the endpoint list. Implementations live in the
// store package.
//
// Load returns a nil slice when nothing has been saved yet, and a non-nil
// slice, possibly empty, once a list has been saved.
type SpecStore interface {
	Load(ctx context.Context) ([]EndpointSpec, error)
	Save(ctx context.Context, specs []EndpointSpec) error
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger    logrus.FieldLogger
	clock     clock.Clock
	dialer    Dialer
	store     SpecStore
	queueSize int
}

func clientDefaults() clientOptions {
	return clientOptions{
		logger:    logrus.StandardLogger(),
		clock:     clock.Real(),
		queueSize: DefaultQueueSize,
	}
}

// WithLogger sets the logger. Defaults to logrus.StandardLogger().
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithClock replaces the wall clock used for timers and retry countdowns.
func WithClock(c clock.Clock) Option {
	return func(o *clientOptions) {
		o.clock = c
	}
}

// WithDialer replaces the WebSocket transport.
func WithDialer(d Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = d
	}
}

// WithStore persists endpoint lists received in reload commands and
// supplies the initial list on Run.
func WithStore(s SpecStore) Option {
	return func(o *clientOptions) {
		o.store = s
	}
}

// WithQueueSize sets the event loop queue capacity.
func WithQueueSize(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}
