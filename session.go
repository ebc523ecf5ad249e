package htmlfwd

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	sessionQueueSize    = 100
	sessionWriteTimeout = 10 * time.Second
	sessionReadLimit    = 1 << 20
)

// wsSession is an observer attached over WebSocket. Frames are queued
// and written by a dedicated goroutine so the event loop never blocks on
// a slow observer.
type wsSession struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
	log  logrus.FieldLogger

	// onDrain runs on the writer goroutine once the queue empties after
	// a frame was rejected for backlog.
	onDrain    func()
	backlogged atomic.Bool
	wake       chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newWSSession(conn *websocket.Conn, log logrus.FieldLogger) *wsSession {
	id := uuid.NewString()
	return &wsSession{
		id:   id,
		conn: conn,
		out:  make(chan []byte, sessionQueueSize),
		log:  log.WithField("session", id),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *wsSession) ID() string { return s.id }

func (s *wsSession) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		s.backlogged.Store(true)
		select {
		case s.wake <- struct{}{}:
		default:
		}
		return ErrSessionBacklog
	}
}

func (s *wsSession) writeLoop() {
	for {
		if len(s.out) == 0 && s.backlogged.CompareAndSwap(true, false) && s.onDrain != nil {
			s.onDrain()
		}
		select {
		case <-s.done:
			return
		case <-s.wake:
		case frame := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.WithError(err).Debug("observer write failed")
				s.close()
				return
			}
		}
	}
}

func (s *wsSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// ObserverServer accepts observer sessions over WebSocket. Each session
// receives a full reload frame on attach, then update and reload frames
// as endpoints change, and may send connect, disconnect and reload
// commands.
type ObserverServer struct {
	client   *Client
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func (s *ObserverServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("observer upgrade failed")
		return
	}
	conn.SetReadLimit(sessionReadLimit)

	loop := s.client.loop
	sess := newWSSession(conn, s.log)
	sess.onDrain = func() {
		loop.Post(func() { s.client.bus.Resync(sess) })
	}
	go sess.writeLoop()
	defer sess.close()

	if !loop.Post(func() { s.client.bus.Attach(sess) }) {
		return
	}
	defer loop.Post(func() { s.client.bus.Detach(sess) })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			sess.log.WithError(err).Debug("observer read ended")
			return
		}
		if !loop.Post(func() { s.client.router.HandleFrame(sess.id, data) }) {
			return
		}
	}
}
