package htmlfwd

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/htmlfwd/go-client/internal/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// inlineExecutor runs posted callbacks immediately, so timer firings and
// transport callbacks in tests complete before the triggering call returns.
type inlineExecutor struct{}

func (inlineExecutor) Post(fn func()) bool {
	fn()
	return true
}

// fakeConn is a Conn whose lifecycle is driven by the test through handler.
type fakeConn struct {
	host    string
	handler ConnHandler

	mu     sync.Mutex
	sent   [][]byte
	closed int
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer records every Dial. Setting err makes Dial fail synchronously.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) Dial(host string, h ConnHandler) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{host: host, handler: h}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// recordingSession is a Session that keeps every frame it is sent.
type recordingSession struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	err    error
}

func newRecordingSession(id string) *recordingSession {
	return &recordingSession{id: id}
}

func (s *recordingSession) ID() string { return s.id }

func (s *recordingSession) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

func (s *recordingSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSession) raw(i int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[i]
}

func (s *recordingSession) lastRaw(t *testing.T) []byte {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames, "session received no frames")
	return s.frames[len(s.frames)-1]
}

func (s *recordingSession) last(t *testing.T) ObserverFrame {
	t.Helper()
	var f ObserverFrame
	require.NoError(t, json.Unmarshal(s.lastRaw(t), &f))
	return f
}

// updates returns the snapshots carried at index by every update frame
// received since frame number from.
func (s *recordingSession) updates(t *testing.T, from, index int) []StatusSnapshot {
	t.Helper()
	s.mu.Lock()
	frames := append([][]byte(nil), s.frames[from:]...)
	s.mu.Unlock()

	var out []StatusSnapshot
	for _, raw := range frames {
		var f ObserverFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Update == nil || index >= len(f.Update) || f.Update[index] == nil {
			continue
		}
		out = append(out, *f.Update[index])
	}
	return out
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []ClientError
}

func (r *errorRecorder) handle(e ClientError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

func (r *errorRecorder) kinds() []ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ErrorKind, len(r.errs))
	for i, e := range r.errs {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *errorRecorder) has(kind ErrorKind) bool {
	for _, k := range r.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// harness wires a registry, bus and router around a fake clock and
// dialer, with one recording session attached.
type harness struct {
	clock    *clock.FakeClock
	dialer   *fakeDialer
	errs     *errorRecorder
	env      *endpointEnv
	bus      *Bus
	registry *Registry
	router   *Router
	session  *recordingSession
}

func newHarness(t *testing.T, specs ...EndpointSpec) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.Fake(epoch),
		dialer:  &fakeDialer{},
		errs:    &errorRecorder{},
		session: newRecordingSession("observer-1"),
	}
	log := discardLogger()
	h.env = &endpointEnv{
		clock:           h.clock,
		exec:            inlineExecutor{},
		dialer:          h.dialer,
		directives:      newDirectiveRegistry(),
		onError:         h.errs.handle,
		log:             log,
		minBackoff:      DefaultMinBackoff,
		maxBackoff:      DefaultMaxBackoff,
		keepAliveMargin: DefaultKeepAliveMargin,
	}
	h.bus = newBus(log, h.errs.handle, h.clock.Now)
	h.registry = newRegistry(h.env, h.bus)
	h.router = newRouter(h.registry, log, h.errs.handle, h.clock.Now)
	h.bus.Attach(h.session)
	h.registry.Reconfigure(specs)
	return h
}

func (h *harness) endpoint(t *testing.T, index int) *Endpoint {
	t.Helper()
	e, err := h.registry.Get(index)
	require.NoError(t, err)
	return e
}

func retrySec(t *testing.T, s StatusSnapshot) int {
	t.Helper()
	require.NotNil(t, s.RetrySec, "snapshot has no retry_sec")
	return *s.RetrySec
}
