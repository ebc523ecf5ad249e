package htmlfwd

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Sentinel errors for client and endpoint state.
var (
	ErrNotConnected    = errors.New("endpoint is not connected")
	ErrClientClosed    = errors.New("client is closed")
	ErrAlreadyRunning  = errors.New("client is already running")
	ErrIndexOutOfRange = errors.New("endpoint index out of range")
	ErrSessionClosed   = errors.New("observer session is closed")
	ErrSessionBacklog  = errors.New("observer session backlog is full")
)

// AddressError reports an endpoint address that a connection attempt
// could not even be started for.
type AddressError struct {
	Host   string
	Reason string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("bad endpoint address [%s]: %s", e.Host, e.Reason)
}

// IndexError reports a command that addressed an endpoint index the
// registry does not hold. It matches ErrIndexOutOfRange with errors.Is.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("endpoint index %d out of range [0, %d)", e.Index, e.Len)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// ErrorKind classifies diagnostics that cannot be returned to a caller.
type ErrorKind int

const (
	ErrParseFailure  ErrorKind = iota // inbound control payload couldn't be decoded
	ErrBadAddress                     // connection attempt could not start
	ErrTransport                      // transport reported an error
	ErrStaleIndex                     // command addressed an unknown endpoint index
	ErrNoHandler                      // no handler registered for a directive
	ErrHandlerPanic                   // directive handler panicked
	ErrHandlerFailed                  // directive handler returned an error
	ErrSessionWrite                   // failed to deliver a frame to an observer
	ErrStore                          // endpoint spec store failed
	ErrBadCommand                     // observer command couldn't be decoded
	ErrCallbackPanic                  // event loop callback panicked
)

var errorKindNames = [...]string{
	ErrParseFailure:  "ErrParseFailure",
	ErrBadAddress:    "ErrBadAddress",
	ErrTransport:     "ErrTransport",
	ErrStaleIndex:    "ErrStaleIndex",
	ErrNoHandler:     "ErrNoHandler",
	ErrHandlerPanic:  "ErrHandlerPanic",
	ErrHandlerFailed: "ErrHandlerFailed",
	ErrSessionWrite:  "ErrSessionWrite",
	ErrStore:         "ErrStore",
	ErrBadCommand:    "ErrBadCommand",
	ErrCallbackPanic: "ErrCallbackPanic",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// ClientError is a diagnostic routed to the ErrorHandler given to
// NewClient. Index is -1 when the error is not tied to an endpoint.
type ClientError struct {
	Kind      ErrorKind
	Endpoint  string // endpoint label, if known
	Host      string
	Index     int
	Session   string // observer session id, if any
	Cause     error
	Raw       []byte // raw payload (for parse failures)
	Timestamp time.Time
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (endpoint=%s host=%s index=%d)", e.Kind, e.Cause, e.Endpoint, e.Host, e.Index)
	}
	return fmt.Sprintf("%s (endpoint=%s host=%s index=%d)", e.Kind, e.Endpoint, e.Host, e.Index)
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorHandler is called for every diagnostic that cannot be returned to
// a direct caller. It runs on the event loop and must not block.
type ErrorHandler func(ClientError)

// LogErrors returns an ErrorHandler that logs every diagnostic at warning
// level.
func LogErrors(logger logrus.FieldLogger) ErrorHandler {
	return func(e ClientError) {
		fields := logrus.Fields{"kind": e.Kind.String()}
		if e.Endpoint != "" || e.Host != "" {
			fields["endpoint"] = e.Endpoint
			fields["host"] = e.Host
		}
		if e.Index >= 0 {
			fields["index"] = e.Index
		}
		if e.Session != "" {
			fields["session"] = e.Session
		}
		entry := logger.WithFields(fields)
		if e.Cause != nil {
			entry = entry.WithError(e.Cause)
		}
		entry.Warn("htmlfwd diagnostic")
	}
}
