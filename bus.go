package htmlfwd

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Session is an attached observer. Send must not block; implementations
// queue the frame or fail.
type Session interface {
	ID() string
	Send(frame []byte) error
}

// ObserverFrame is a message sent to observer sessions. Exactly one of
// Reload and Update is set.
type ObserverFrame struct {
	// Reload replaces the observer's copy of every endpoint.
	Reload []EndpointState `json:"reload,omitempty"`

	// Update is positional; nil entries mean "unchanged".
	Update []*StatusSnapshot `json:"update,omitempty"`
}

// Bus fans state changes out to every attached observer session. Each
// frame is encoded once, so every session receives identical bytes. All
// methods must be called on the event loop.
//
// A session that rejects a frame with ErrSessionBacklog has missed a
// change. It is marked stale and gets a full reload frame in place of
// the next frame, or when Resync is called, whichever comes first.
type Bus struct {
	sessions map[string]Session
	stale    map[string]bool
	log      logrus.FieldLogger
	onError  ErrorHandler
	now      func() time.Time

	// snapshot supplies the full state sent to newly attached sessions.
	snapshot func() []EndpointState
}

func newBus(log logrus.FieldLogger, onError ErrorHandler, now func() time.Time) *Bus {
	return &Bus{
		sessions: make(map[string]Session),
		stale:    make(map[string]bool),
		log:      log,
		onError:  onError,
		now:      now,
		snapshot: func() []EndpointState { return nil },
	}
}

// Attach adds s and immediately sends it a full reload frame.
func (b *Bus) Attach(s Session) {
	b.sessions[s.ID()] = s
	delete(b.stale, s.ID())
	b.log.WithField("session", s.ID()).Info("observer attached")

	frame, err := encodeReload(b.snapshot())
	if err != nil {
		b.log.WithError(err).Error("encode reload frame")
		return
	}
	b.deliver(s, frame)
}

// Detach removes s. Detaching an unknown session is a no-op.
func (b *Bus) Detach(s Session) {
	if _, ok := b.sessions[s.ID()]; !ok {
		return
	}
	delete(b.sessions, s.ID())
	delete(b.stale, s.ID())
	b.log.WithField("session", s.ID()).Info("observer detached")
}

// Len returns the number of attached sessions.
func (b *Bus) Len() int {
	return len(b.sessions)
}

// BroadcastUpdate sends a positional update of length n carrying snap at
// index and null everywhere else.
func (b *Bus) BroadcastUpdate(index, n int, snap StatusSnapshot) {
	if index < 0 || index >= n {
		return
	}
	update := make([]*StatusSnapshot, n)
	update[index] = &snap
	frame, err := json.Marshal(ObserverFrame{Update: update})
	if err != nil {
		b.log.WithError(err).Error("encode update frame")
		return
	}
	b.broadcast(frame)
}

// BroadcastReload sends the full ordered state to every session.
func (b *Bus) BroadcastReload(states []EndpointState) {
	frame, err := encodeReload(states)
	if err != nil {
		b.log.WithError(err).Error("encode reload frame")
		return
	}
	b.broadcast(frame)
}

// Resync sends a full reload frame to s if it has missed a change.
func (b *Bus) Resync(s Session) {
	if _, ok := b.sessions[s.ID()]; !ok || !b.stale[s.ID()] {
		return
	}
	b.resync(s)
}

func (b *Bus) broadcast(frame []byte) {
	// Deleting from a map while ranging over it is safe.
	for id, s := range b.sessions {
		if b.stale[id] {
			b.resync(s)
			continue
		}
		b.deliver(s, frame)
	}
}

// resync replaces whatever s missed with the current full state. The
// session stays stale while its queue is still full.
func (b *Bus) resync(s Session) {
	frame, err := encodeReload(b.snapshot())
	if err != nil {
		b.log.WithError(err).Error("encode reload frame")
		return
	}
	switch err := s.Send(frame); {
	case err == nil:
		delete(b.stale, s.ID())
		b.log.WithField("session", s.ID()).Debug("observer resynced")
	case errors.Is(err, ErrSessionBacklog):
	default:
		b.deliverFailed(s, err)
	}
}

func (b *Bus) deliver(s Session, frame []byte) {
	if err := s.Send(frame); err != nil {
		b.deliverFailed(s, err)
	}
}

func (b *Bus) deliverFailed(s Session, err error) {
	b.onError(ClientError{
		Kind:      ErrSessionWrite,
		Index:     -1,
		Session:   s.ID(),
		Cause:     err,
		Timestamp: b.now(),
	})
	switch {
	case errors.Is(err, ErrSessionClosed):
		b.Detach(s)
	case errors.Is(err, ErrSessionBacklog):
		b.stale[s.ID()] = true
	}
}

// encodeReload always emits the reload key, so an empty registry is
// sent as "reload": [].
func encodeReload(states []EndpointState) ([]byte, error) {
	if states == nil {
		states = []EndpointState{}
	}
	return json.Marshal(struct {
		Reload []EndpointState `json:"reload"`
	}{Reload: states})
}
