package htmlfwd

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var threeSpecs = []EndpointSpec{
	{Label: "A", Host: "h:1"},
	{Label: "B", Host: "h:2"},
	{Label: "C", Host: "h:3"},
}

func TestBus_AttachSendsReload(t *testing.T) {
	h := newHarness(t, threeSpecs...)

	s := newRecordingSession("late")
	h.bus.Attach(s)

	require.Equal(t, 1, s.count())
	f := s.last(t)
	require.Len(t, f.Reload, 3)
	assert.Nil(t, f.Update)
	for i, st := range f.Reload {
		assert.Equal(t, threeSpecs[i].Label, st.Label)
		assert.Equal(t, threeSpecs[i].Host, st.Host)
		assert.Equal(t, StatusConnecting, st.Status)
		assert.Nil(t, st.RetrySec)
	}
}

func TestBus_AttachMidCountdown(t *testing.T) {
	h := newHarness(t, threeSpecs...)
	h.endpoint(t, 1).Connect()
	h.dialer.last().handler.OnClose(nil)
	h.clock.Advance(4 * time.Second)

	s := newRecordingSession("late")
	h.bus.Attach(s)

	f := s.last(t)
	require.Len(t, f.Reload, 3)
	require.NotNil(t, f.Reload[1].RetrySec)
	assert.Equal(t, 6, *f.Reload[1].RetrySec)
	assert.Nil(t, f.Reload[0].RetrySec)
}

func TestBus_AttachEmptyRegistry(t *testing.T) {
	h := newHarness(t)

	s := newRecordingSession("late")
	h.bus.Attach(s)

	assert.JSONEq(t, `{"reload":[]}`, string(s.lastRaw(t)))
}

func TestBus_UpdateIsPositional(t *testing.T) {
	h := newHarness(t, threeSpecs...)
	h.endpoint(t, 1).Connect()
	h.dialer.last().handler.OnOpen()

	assert.Equal(t, `{"update":[null,{"status":"connected"},null]}`, string(h.session.lastRaw(t)))

	f := h.session.last(t)
	require.Len(t, f.Update, 3)
	assert.Nil(t, f.Update[0])
	assert.Nil(t, f.Update[2])
	assert.Equal(t, StatusConnected, f.Update[1].Status)
}

func TestBus_IdenticalBytesAcrossSessions(t *testing.T) {
	h := newHarness(t, threeSpecs...)
	other := newRecordingSession("observer-2")
	h.bus.Attach(other)
	require.Equal(t, 2, h.bus.Len())

	a, b := h.session.count(), other.count()
	h.endpoint(t, 2).Connect()
	h.dialer.last().handler.OnClose(errors.New("refused"))
	h.registry.Reconfigure(threeSpecs[:1])

	require.Equal(t, h.session.count()-a, other.count()-b)
	for i := 0; i < other.count()-b; i++ {
		assert.Equal(t, h.session.raw(a+i), other.raw(b+i), "frame %d differs", i)
	}
}

func TestBus_ReloadFrame(t *testing.T) {
	h := newHarness(t)
	h.registry.Reconfigure([]EndpointSpec{{Label: "A", Host: "h:1"}})

	assert.Equal(t, `{"reload":[{"label":"A","host":"h:1","status":"connecting"}]}`, string(h.session.lastRaw(t)))
}

func TestBus_Detach(t *testing.T) {
	h := newHarness(t, threeSpecs...)

	h.bus.Detach(h.session)
	h.bus.Detach(h.session)
	assert.Equal(t, 0, h.bus.Len())

	n := h.session.count()
	h.endpoint(t, 0).Connect()
	h.registry.Reconfigure(threeSpecs)
	assert.Equal(t, n, h.session.count())
}

func TestBus_ClosedSessionDetached(t *testing.T) {
	h := newHarness(t, threeSpecs...)
	h.session.err = ErrSessionClosed

	h.endpoint(t, 0).Disconnect()

	assert.Equal(t, 0, h.bus.Len())
	assert.Equal(t, []ErrorKind{ErrSessionWrite}, h.errs.kinds())
	assert.Equal(t, "observer-1", h.errs.errs[0].Session)
	assert.Equal(t, -1, h.errs.errs[0].Index)
}

func TestBus_BackloggedSessionResyncsOnNextFrame(t *testing.T) {
	h := newHarness(t, threeSpecs...)
	h.session.err = ErrSessionBacklog

	h.endpoint(t, 0).Disconnect()

	assert.Equal(t, 1, h.bus.Len())
	assert.True(t, h.bus.stale[h.session.ID()])
	assert.Equal(t, []ErrorKind{ErrSessionWrite}, h.errs.kinds())

	// Still backlogged: the session stays stale and no new error is raised.
	h.endpoint(t, 1).Disconnect()
	assert.True(t, h.bus.stale[h.session.ID()])
	assert.Len(t, h.errs.kinds(), 1)

	h.session.err = nil
	h.endpoint(t, 2).Connect()
	h.dialer.last().handler.OnOpen()

	assert.False(t, h.bus.stale[h.session.ID()])
	f := h.session.last(t)
	assert.Nil(t, f.Update)
	require.Len(t, f.Reload, 3)
	assert.Equal(t, StatusDisconnected, f.Reload[0].Status)
	assert.Equal(t, StatusDisconnected, f.Reload[1].Status)
	assert.Equal(t, StatusConnected, f.Reload[2].Status)

	// Back in sync, later changes are plain updates again.
	h.endpoint(t, 2).Disconnect()
	assert.Equal(t, `{"update":[null,null,{"status":"disconnected"}]}`, string(h.session.lastRaw(t)))
}

func TestBus_ResyncAfterDrain(t *testing.T) {
	h := newHarness(t, threeSpecs...)
	h.session.err = ErrSessionBacklog
	h.endpoint(t, 0).Disconnect()

	// No further changes happen; the drained session asks to catch up.
	h.session.err = nil
	n := h.session.count()
	h.bus.Resync(h.session)

	require.Equal(t, n+1, h.session.count())
	f := h.session.last(t)
	require.Len(t, f.Reload, 3)
	assert.Equal(t, StatusDisconnected, f.Reload[0].Status)
	assert.False(t, h.bus.stale[h.session.ID()])

	h.bus.Resync(h.session)
	assert.Equal(t, n+1, h.session.count())
}

func TestBus_DetachClearsStale(t *testing.T) {
	h := newHarness(t, threeSpecs...)
	h.session.err = ErrSessionBacklog
	h.endpoint(t, 0).Disconnect()

	h.bus.Detach(h.session)
	assert.Empty(t, h.bus.stale)

	h.session.err = nil
	n := h.session.count()
	h.bus.Resync(h.session)
	assert.Equal(t, n, h.session.count())
}

func TestBus_UpdateOutOfRangeDropped(t *testing.T) {
	h := newHarness(t, threeSpecs...)
	n := h.session.count()

	h.bus.BroadcastUpdate(3, 3, StatusSnapshot{Status: StatusConnected})
	h.bus.BroadcastUpdate(-1, 3, StatusSnapshot{Status: StatusConnected})

	assert.Equal(t, n, h.session.count())
}

func TestObserverFrame_Decode(t *testing.T) {
	var f ObserverFrame
	require.NoError(t, json.Unmarshal([]byte(`{"update":[null,{"status":"connecting","retry_sec":40}]}`), &f))

	require.Len(t, f.Update, 2)
	assert.Nil(t, f.Update[0])
	require.NotNil(t, f.Update[1].RetrySec)
	assert.Equal(t, 40, *f.Update[1].RetrySec)
}
