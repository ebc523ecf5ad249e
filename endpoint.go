package htmlfwd

import (
	"fmt"
	"time"

	"github.com/htmlfwd/go-client/internal/clock"
	"github.com/sirupsen/logrus"
)

// Status is the connection state of an endpoint.
type Status int

const (
	// StatusConnecting covers an attempt in flight, a pending retry, and
	// an endpoint that has not been asked to connect yet.
	StatusConnecting Status = iota

	// StatusConnected means the connection reached the open state.
	StatusConnected

	// StatusDisconnected is only entered by an explicit disconnect.
	StatusDisconnected
)

var statusNames = [...]string{
	StatusConnecting:   "connecting",
	StatusConnected:    "connected",
	StatusDisconnected: "disconnected",
}

func (s Status) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", s)
}

func (s Status) MarshalText() ([]byte, error) {
	if int(s) < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if string(text) == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// StatusSnapshot is the observer-visible state of one endpoint.
type StatusSnapshot struct {
	Status Status `json:"status"`

	// RetrySec is the number of whole seconds until the pending retry.
	// Present only while connecting with a retry in the future.
	RetrySec *int `json:"retry_sec,omitempty"`
}

// EndpointSpec configures one endpoint.
type EndpointSpec struct {
	Label string `json:"label" yaml:"label"`
	Host  string `json:"host" yaml:"host"`
}

// EndpointState is an endpoint's identity plus its snapshot, as sent in
// full reload frames.
type EndpointState struct {
	Label    string `json:"label"`
	Host     string `json:"host"`
	Status   Status `json:"status"`
	RetrySec *int   `json:"retry_sec,omitempty"`
}

// endpointEnv is shared by every endpoint in a registry.
type endpointEnv struct {
	clock      clock.Clock
	exec       executor
	dialer     Dialer
	directives *directiveRegistry
	onError    ErrorHandler
	log        logrus.FieldLogger

	minBackoff      time.Duration
	maxBackoff      time.Duration
	keepAliveMargin time.Duration
}

// Endpoint owns the connection lifecycle of a single remote host: the
// connection handle, the retry timer with its backoff, and the keepalive
// watchdog. All methods must be called on the event loop.
type Endpoint struct {
	env    *endpointEnv
	index  int
	label  string
	host   string
	log    logrus.FieldLogger
	notify func(*Endpoint)

	status      Status
	nextRetryAt time.Time
	backoff     *backoff

	// att is the connection attempt currently owned, nil when no
	// connection is in flight or open.
	att        *attempt
	everOpened bool

	// keepAliveInterval is zero until the remote announces it.
	keepAliveInterval time.Duration

	retryTimer     *timerSlot
	keepAliveTimer *timerSlot
}

func newEndpoint(env *endpointEnv, index int, spec EndpointSpec, notify func(*Endpoint)) *Endpoint {
	return &Endpoint{
		env:   env,
		index: index,
		label: spec.Label,
		host:  spec.Host,
		log: env.log.WithFields(logrus.Fields{
			"endpoint": spec.Label,
			"host":     spec.Host,
			"index":    index,
		}),
		notify:         notify,
		status:         StatusConnecting,
		backoff:        newBackoff(env.minBackoff, env.maxBackoff),
		retryTimer:     newTimerSlot(env.clock, env.exec),
		keepAliveTimer: newTimerSlot(env.clock, env.exec),
	}
}

func (e *Endpoint) Index() int     { return e.index }
func (e *Endpoint) Label() string  { return e.label }
func (e *Endpoint) Host() string   { return e.host }
func (e *Endpoint) Status() Status { return e.status }

// BackoffInterval returns the delay the next retry will be scheduled with.
func (e *Endpoint) BackoffInterval() time.Duration { return e.backoff.interval() }

// NextRetryAt returns when the pending retry fires, or the zero time.
func (e *Endpoint) NextRetryAt() time.Time { return e.nextRetryAt }

// KeepAliveInterval returns the heartbeat period announced by the remote,
// or zero if none has been announced on the current connection.
func (e *Endpoint) KeepAliveInterval() time.Duration { return e.keepAliveInterval }

// HasConnection reports whether a connection is in flight or open.
func (e *Endpoint) HasConnection() bool { return e.att != nil }

// RetryPending reports whether a retry timer is armed.
func (e *Endpoint) RetryPending() bool { return e.retryTimer.Pending() }

// KeepAlivePending reports whether the keepalive watchdog is armed.
func (e *Endpoint) KeepAlivePending() bool { return e.keepAliveTimer.Pending() }

// Connect starts a connection attempt unless one is already in flight or
// open. Any pending retry is canceled first.
func (e *Endpoint) Connect() {
	e.retryTimer.Stop()
	if e.att != nil {
		e.log.Debug("connect ignored, connection already owned")
		return
	}

	changed := e.status != StatusConnecting || !e.nextRetryAt.IsZero()
	e.status = StatusConnecting
	e.nextRetryAt = time.Time{}

	att := &attempt{ep: e}
	e.att = att
	e.log.Info("connecting")
	conn, err := e.env.dialer.Dial(e.host, att)
	if err != nil {
		e.att = nil
		e.report(ErrBadAddress, err, nil)
		e.scheduleRetry()
		return
	}
	att.conn = conn

	if changed {
		e.notify(e)
	}
}

// Disconnect closes the connection, if any, without triggering a retry
// and leaves the endpoint Disconnected. Backoff returns to its minimum.
func (e *Endpoint) Disconnect() {
	e.teardown()
	e.backoff.reset()
	e.status = StatusDisconnected
	e.log.Info("disconnected")
	e.notify(e)
}

// Send writes data on the open connection.
func (e *Endpoint) Send(data []byte) error {
	if e.att == nil || e.status != StatusConnected {
		return ErrNotConnected
	}
	return e.att.conn.Send(data)
}

// Snapshot returns the observer-visible state at now.
func (e *Endpoint) Snapshot(now time.Time) StatusSnapshot {
	snap := StatusSnapshot{Status: e.status}
	if e.status == StatusConnecting && e.nextRetryAt.After(now) {
		sec := int(e.nextRetryAt.Sub(now) / time.Second)
		snap.RetrySec = &sec
	}
	return snap
}

// State returns the snapshot together with the endpoint's identity.
func (e *Endpoint) State(now time.Time) EndpointState {
	snap := e.Snapshot(now)
	return EndpointState{
		Label:    e.label,
		Host:     e.host,
		Status:   snap.Status,
		RetrySec: snap.RetrySec,
	}
}

// teardown cancels both timers and closes the owned connection with its
// callbacks detached, so the close is not seen as a drop.
func (e *Endpoint) teardown() {
	e.retryTimer.Stop()
	e.keepAliveTimer.Stop()
	e.nextRetryAt = time.Time{}
	e.keepAliveInterval = 0
	e.everOpened = false

	if att := e.att; att != nil {
		e.att = nil
		att.detached = true
		if err := att.conn.Close(); err != nil {
			e.log.WithError(err).Debug("close connection")
		}
	}
}

func (e *Endpoint) onOpen() {
	e.status = StatusConnected
	e.everOpened = true
	e.nextRetryAt = time.Time{}
	e.backoff.reset()
	e.log.Info("connected")
	e.notify(e)
}

func (e *Endpoint) onClose(err error) {
	e.att = nil
	e.keepAliveTimer.Stop()
	e.keepAliveInterval = 0

	entry := e.log
	if err != nil {
		entry = entry.WithError(err)
	}
	if e.everOpened {
		entry.Warn("connection dropped")
	} else {
		entry.Info("failed to connect")
	}
	e.everOpened = false
	e.scheduleRetry()
}

func (e *Endpoint) onError(err error) {
	e.report(ErrTransport, err, nil)
}

func (e *Endpoint) onMessage(data []byte) {
	msg, err := parseControlMessage(data)
	if err != nil {
		e.report(ErrParseFailure, err, data)
		return
	}

	if msg.KeepAliveInterval > 0 {
		e.keepAliveInterval = msg.KeepAliveInterval
		e.log.WithField("interval", msg.KeepAliveInterval).Debug("keepalive interval announced")
		e.armWatchdog()
	}
	if msg.KeepAlive {
		e.armWatchdog()
		return
	}

	for _, d := range msg.directives(e.label, e.host) {
		handled := e.env.directives.dispatch(d, func(kind ErrorKind, err error) {
			e.env.exec.Post(func() { e.report(kind, err, nil) })
		})
		if !handled {
			e.report(ErrNoHandler, fmt.Errorf("no handler for directive %s", d.Kind), data)
		}
	}
}

func (e *Endpoint) onKeepAliveTimeout() {
	e.log.WithField("interval", e.keepAliveInterval).Warn("keepalive timed out, reconnecting")
	e.teardown()
	e.backoff.reset()
	e.Connect()
}

// scheduleRetry arms the retry timer for the current backoff interval and
// doubles the interval for the next failure.
func (e *Endpoint) scheduleRetry() {
	d := e.backoff.next()
	e.status = StatusConnecting
	e.nextRetryAt = e.env.clock.Now().Add(d)
	e.retryTimer.Reset(d, e.Connect)
	e.log.WithField("delay", d).Info("retry scheduled")
	e.notify(e)
}

func (e *Endpoint) armWatchdog() {
	if e.keepAliveInterval <= 0 {
		e.log.Debug("heartbeat before keepalive interval announced")
		return
	}
	e.keepAliveTimer.Reset(e.keepAliveInterval+e.env.keepAliveMargin, e.onKeepAliveTimeout)
}

func (e *Endpoint) report(kind ErrorKind, err error, raw []byte) {
	e.env.onError(ClientError{
		Kind:      kind,
		Endpoint:  e.label,
		Host:      e.host,
		Index:     e.index,
		Cause:     err,
		Raw:       raw,
		Timestamp: e.env.clock.Now(),
	})
}

// close releases timers and the connection when the endpoint is being
// discarded. Observers are not notified.
func (e *Endpoint) close() {
	e.teardown()
}

// attempt binds transport callbacks for one connection to its endpoint.
// Callbacks are marshaled onto the event loop and dropped once the
// attempt has been detached or superseded.
type attempt struct {
	ep       *Endpoint
	conn     Conn
	detached bool
}

func (a *attempt) live() bool {
	return !a.detached && a.ep.att == a
}

func (a *attempt) OnOpen() {
	a.ep.env.exec.Post(func() {
		if a.live() {
			a.ep.onOpen()
		}
	})
}

func (a *attempt) OnClose(err error) {
	a.ep.env.exec.Post(func() {
		if a.live() {
			a.ep.onClose(err)
		}
	})
}

func (a *attempt) OnError(err error) {
	a.ep.env.exec.Post(func() {
		if a.live() {
			a.ep.onError(err)
		}
	})
}

func (a *attempt) OnMessage(data []byte) {
	a.ep.env.exec.Post(func() {
		if a.live() {
			a.ep.onMessage(data)
		}
	})
}
