package htmlfwd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Command is an instruction sent by an observer session:
//
//	{"connect": true, "index": 0}
//	{"disconnect": true, "index": 0}
//	{"reload": [{"label": "A", "host": "h:1"}]}
type Command struct {
	Connect    bool           `json:"connect,omitempty"`
	Disconnect bool           `json:"disconnect,omitempty"`
	Index      int            `json:"index"`
	Reload     []EndpointSpec `json:"reload,omitempty"`

	// reload distinguishes "reload": [] from an absent key.
	reload bool
}

// ConnectCommand returns a command connecting the endpoint at index.
func ConnectCommand(index int) Command { return Command{Connect: true, Index: index} }

// DisconnectCommand returns a command disconnecting the endpoint at index.
func DisconnectCommand(index int) Command { return Command{Disconnect: true, Index: index} }

// ReloadCommand returns a command replacing the endpoint set.
func ReloadCommand(specs []EndpointSpec) Command {
	if specs == nil {
		specs = []EndpointSpec{}
	}
	return Command{Reload: specs, reload: true}
}

// MarshalJSON emits "reload" even when the list is empty.
func (c Command) MarshalJSON() ([]byte, error) {
	if c.reload {
		return json.Marshal(struct {
			Reload []EndpointSpec `json:"reload"`
		}{Reload: c.Reload})
	}
	type plain Command
	return json.Marshal(plain(c))
}

// ParseCommand decodes one observer command.
func ParseCommand(data []byte) (Command, error) {
	var raw struct {
		Connect    bool            `json:"connect"`
		Disconnect bool            `json:"disconnect"`
		Index      *int            `json:"index"`
		Reload     json.RawMessage `json:"reload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}

	var cmd Command
	cmd.Connect = raw.Connect
	cmd.Disconnect = raw.Disconnect
	if raw.Index != nil {
		cmd.Index = *raw.Index
	}

	reload := bytes.TrimSpace(raw.Reload)
	if len(reload) > 0 && !bytes.Equal(reload, []byte("null")) {
		if err := json.Unmarshal(reload, &cmd.Reload); err != nil {
			return Command{}, fmt.Errorf("parse reload command: %w", err)
		}
		if cmd.Reload == nil {
			cmd.Reload = []EndpointSpec{}
		}
		cmd.reload = true
	}

	if (cmd.Connect || cmd.Disconnect) && raw.Index == nil {
		return Command{}, fmt.Errorf("parse command: missing index")
	}
	if !cmd.Connect && !cmd.Disconnect && !cmd.reload {
		return Command{}, fmt.Errorf("parse command: no connect, disconnect or reload")
	}
	return cmd, nil
}

// Router applies observer commands to the registry. All methods must be
// called on the event loop.
type Router struct {
	registry *Registry
	log      logrus.FieldLogger
	onError  ErrorHandler
	now      func() time.Time

	// persist saves a reloaded endpoint list. It must not block.
	persist func([]EndpointSpec)
}

func newRouter(registry *Registry, log logrus.FieldLogger, onError ErrorHandler, now func() time.Time) *Router {
	return &Router{
		registry: registry,
		log:      log,
		onError:  onError,
		now:      now,
		persist:  func([]EndpointSpec) {},
	}
}

// HandleFrame decodes and dispatches a raw command received from the
// session identified by sessionID.
func (r *Router) HandleFrame(sessionID string, data []byte) {
	cmd, err := ParseCommand(data)
	if err != nil {
		r.onError(ClientError{
			Kind:      ErrBadCommand,
			Index:     -1,
			Session:   sessionID,
			Cause:     err,
			Raw:       data,
			Timestamp: r.now(),
		})
		return
	}
	r.Dispatch(sessionID, cmd)
}

// Dispatch applies cmd. Commands addressing an index the registry does
// not hold are reported and ignored; they are expected when a command
// races a reconfiguration.
func (r *Router) Dispatch(sessionID string, cmd Command) {
	switch {
	case cmd.Connect:
		if e := r.resolve(sessionID, cmd.Index); e != nil {
			e.Connect()
		}
	case cmd.Disconnect:
		if e := r.resolve(sessionID, cmd.Index); e != nil {
			e.Disconnect()
		}
	case cmd.reload || cmd.Reload != nil:
		specs := cmd.Reload
		if specs == nil {
			specs = []EndpointSpec{}
		}
		r.log.WithField("endpoints", len(specs)).Info("reload requested")
		r.persist(specs)
		r.registry.Reconfigure(specs)
		r.registry.ConnectAll()
	}
}

func (r *Router) resolve(sessionID string, index int) *Endpoint {
	e, err := r.registry.Get(index)
	if err != nil {
		r.onError(ClientError{
			Kind:      ErrStaleIndex,
			Index:     index,
			Session:   sessionID,
			Cause:     err,
			Timestamp: r.now(),
		})
		return nil
	}
	return e
}
