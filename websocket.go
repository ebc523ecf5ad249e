package htmlfwd

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer implements Dialer over WebSocket. A host of the form
// "h:1" connects to ws://h:1<Path>; a host that already carries a ws://
// or wss:// scheme is used as-is.
type WebSocketDialer struct {
	// Path is appended to bare hosts. Defaults to "/ws".
	Path string

	// HandshakeTimeout bounds the opening handshake. Defaults to 10s.
	HandshakeTimeout time.Duration
}

// NewWebSocketDialer returns a dialer configured from cfg.
func NewWebSocketDialer(cfg Config) *WebSocketDialer {
	return &WebSocketDialer{
		Path:             cfg.RemotePath,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
}

func (d *WebSocketDialer) endpointURL(host string) (string, error) {
	raw := host
	if !strings.Contains(host, "://") {
		path := d.Path
		if path == "" {
			path = DefaultRemotePath
		}
		raw = "ws://" + host + path
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &AddressError{Host: host, Reason: err.Error()}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", &AddressError{Host: host, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return "", &AddressError{Host: host, Reason: "missing host"}
	}
	return u.String(), nil
}

// Dial validates the address synchronously and opens the connection in
// the background.
func (d *WebSocketDialer) Dial(host string, h ConnHandler) (Conn, error) {
	target, err := d.endpointURL(host)
	if err != nil {
		return nil, err
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		url:     target,
		handler: h,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run(ctx, &websocket.Dialer{HandshakeTimeout: timeout})
	return c, nil
}

// wsConn is one WebSocket connection to a remote endpoint.
type wsConn struct {
	url     string
	handler ConnHandler
	cancel  context.CancelFunc

	conn *websocket.Conn
	mu   sync.Mutex // protects conn and writes

	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *wsConn) run(ctx context.Context, dialer *websocket.Dialer) {
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if !c.closed() {
			c.handler.OnError(err)
			c.handler.OnClose(err)
		}
		return
	}

	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.handler.OnOpen()
	c.readLoop(conn)
}

func (c *wsConn) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closed() {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.handler.OnError(err)
			}
			c.handler.OnClose(err)
			return
		}
		if c.closed() {
			return
		}
		c.handler.OnMessage(data)
	}
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed() {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		conn := c.conn
		c.mu.Unlock()

		c.cancel()
		if conn == nil {
			return
		}
		// Best effort; the peer may already be gone.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	})
	return err
}
