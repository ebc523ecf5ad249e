package htmlfwd

// Dialer opens connections to remote endpoints. The current
// implementation is WebSocketDialer (websocket.go); tests substitute a
// fake.
type Dialer interface {
	// Dial starts opening a connection to host and returns its handle
	// without waiting for the connection to be established. An error
	// means the attempt could not even start (for example a malformed
	// address); no callbacks follow.
	//
	// On success the outcome is reported through h: OnOpen once the
	// connection is established, OnMessage for each inbound frame, and
	// exactly one OnClose when the connection fails to open or drops.
	// Callbacks may arrive on any goroutine but never before Dial has
	// returned. Callbacks racing a call to Close may still be delivered;
	// endpoints ignore anything arriving for a closed handle.
	Dial(host string, h ConnHandler) (Conn, error)
}

// Conn is a live or in-flight duplex connection.
type Conn interface {
	// Send writes one text frame.
	Send(data []byte) error

	// Close tears the connection down. Calling it more than once is
	// allowed.
	Close() error
}

// ConnHandler receives lifecycle events for a single connection.
type ConnHandler interface {
	OnOpen()
	OnClose(err error)
	OnError(err error)
	OnMessage(data []byte)
}
