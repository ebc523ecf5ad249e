package htmlfwd

import "time"

// Reconnect timing defaults.
const (
	DefaultMinBackoff      = 10 * time.Second
	DefaultMaxBackoff      = 600 * time.Second
	DefaultKeepAliveMargin = 10 * time.Second

	// MaxKeepAliveInterval bounds announced heartbeat intervals and the
	// configured margin, so their sum always fits in a time.Duration.
	MaxKeepAliveInterval = 24 * time.Hour

	backoffFactor = 2
)

// backoff implements geometric backoff clamped to [min, max].
type backoff struct {
	min     time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	if max < min {
		max = min
	}
	return &backoff{
		min:     min,
		max:     max,
		current: min,
	}
}

// next returns the delay to use for the retry being scheduled now and
// doubles the interval for the following failure.
func (b *backoff) next() time.Duration {
	d := b.current
	b.current *= backoffFactor
	if b.current > b.max {
		b.current = b.max
	}
	if d > b.max {
		d = b.max
	}
	return d
}

// interval returns the delay the next call to next would return.
func (b *backoff) interval() time.Duration {
	return b.current
}

func (b *backoff) reset() {
	b.current = b.min
}
