package htmlfwd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const storeSaveTimeout = 10 * time.Second

// Client is the top-level context object. It owns the event loop, the
// endpoint registry, the observer bus and the command router; nothing
// is held in package-level state.
type Client struct {
	cfg     Config
	log     logrus.FieldLogger
	onError ErrorHandler
	store   SpecStore

	loop       *Loop
	env        *endpointEnv
	bus        *Bus
	registry   *Registry
	router     *Router
	directives *directiveRegistry

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	stopped chan struct{}

	// Saves are written by a single goroutine. Only the latest pending
	// list is kept, so the store always ends with the newest reload.
	saveMu      sync.Mutex
	savePending []EndpointSpec
	saveQueued  bool
	saveWake    chan struct{}
}

// NewClient creates a client with the given configuration. onError
// receives diagnostics that cannot be returned to a caller (bad
// addresses, malformed payloads, stale command indexes). The client does
// nothing until Run is called.
func NewClient(cfg Config, onError ErrorHandler, opts ...Option) (*Client, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	if onError == nil {
		return nil, errors.New("ErrorHandler must not be nil")
	}

	o := clientDefaults()
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = NewWebSocketDialer(resolved)
	}

	c := &Client{
		cfg:        resolved,
		log:        o.logger,
		onError:    onError,
		store:      o.store,
		directives: newDirectiveRegistry(),
		stopped:    make(chan struct{}),
		saveWake:   make(chan struct{}, 1),
	}
	c.loop = newLoop(o.queueSize, o.logger, func(p any) {
		c.onError(ClientError{
			Kind:      ErrCallbackPanic,
			Index:     -1,
			Cause:     fmt.Errorf("panic: %v", p),
			Timestamp: o.clock.Now(),
		})
	})
	c.env = &endpointEnv{
		clock:           o.clock,
		exec:            c.loop,
		dialer:          o.dialer,
		directives:      c.directives,
		onError:         onError,
		log:             o.logger,
		minBackoff:      resolved.MinBackoff,
		maxBackoff:      resolved.MaxBackoff,
		keepAliveMargin: resolved.KeepAliveMargin,
	}
	c.bus = newBus(o.logger, onError, o.clock.Now)
	c.registry = newRegistry(c.env, c.bus)
	c.router = newRouter(c.registry, o.logger, onError, o.clock.Now)
	if c.store != nil {
		c.router.persist = c.saveSpecs
	}
	return c, nil
}

// Handle registers the handler for a directive kind. Handlers must be
// registered before Run.
func (c *Client) Handle(kind DirectiveKind, fn DirectiveFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.closed {
		return ErrAlreadyRunning
	}
	return c.directives.register(kind, fn)
}

// Run loads the endpoint list, connects every endpoint, and processes
// events until ctx is canceled or Close is called. All endpoints are
// torn down before Run returns.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stopped)
	}()

	saverDone := make(chan struct{})
	if c.store != nil {
		go c.saveLoop(ctx, saverDone)
	} else {
		close(saverDone)
	}

	specs := c.initialSpecs(ctx)
	c.loop.Post(func() {
		c.registry.Reconfigure(specs)
		c.registry.ConnectAll()
	})

	c.log.WithField("endpoints", len(specs)).Info("client running")
	c.loop.Run(ctx)

	// The loop has stopped; nothing else touches the registry now.
	c.registry.Close()
	<-saverDone
	c.log.Info("client stopped")
	return nil
}

// Close stops a running client and waits for Run to return.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	running := c.running
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if running {
		<-c.stopped
	}
	return nil
}

// Connect connects the endpoint at index.
func (c *Client) Connect(ctx context.Context, index int) error {
	return c.withEndpoint(ctx, index, (*Endpoint).Connect)
}

// Disconnect disconnects the endpoint at index.
func (c *Client) Disconnect(ctx context.Context, index int) error {
	return c.withEndpoint(ctx, index, (*Endpoint).Disconnect)
}

// Send writes data on the open connection of the endpoint at index.
func (c *Client) Send(ctx context.Context, index int, data []byte) error {
	var sendErr error
	err := c.withEndpoint(ctx, index, func(e *Endpoint) {
		sendErr = e.Send(data)
	})
	if err != nil {
		return err
	}
	return sendErr
}

// Reload replaces the endpoint set and connects every new endpoint, as
// an observer reload command does.
func (c *Client) Reload(ctx context.Context, specs []EndpointSpec) error {
	cp := append([]EndpointSpec(nil), specs...)
	return c.loop.Do(ctx, func() {
		c.router.Dispatch("", ReloadCommand(cp))
	})
}

// States returns the current state of every endpoint.
func (c *Client) States(ctx context.Context) ([]EndpointState, error) {
	var states []EndpointState
	err := c.loop.Do(ctx, func() {
		states = c.registry.States()
	})
	return states, err
}

// Attach adds an observer session. It receives a full reload frame
// before any later update.
func (c *Client) Attach(s Session) error {
	if !c.loop.Post(func() { c.bus.Attach(s) }) {
		return ErrClientClosed
	}
	return nil
}

// Detach removes an observer session.
func (c *Client) Detach(s Session) error {
	if !c.loop.Post(func() { c.bus.Detach(s) }) {
		return ErrClientClosed
	}
	return nil
}

// ObserverHandler returns an http.Handler that upgrades requests to
// WebSocket observer sessions.
func (c *Client) ObserverHandler() http.Handler {
	return &ObserverServer{client: c, log: c.log}
}

func (c *Client) withEndpoint(ctx context.Context, index int, fn func(*Endpoint)) error {
	var getErr error
	err := c.loop.Do(ctx, func() {
		e, err := c.registry.Get(index)
		if err != nil {
			getErr = err
			return
		}
		fn(e)
	})
	if err != nil {
		return err
	}
	return getErr
}

func (c *Client) initialSpecs(ctx context.Context) []EndpointSpec {
	if c.store != nil {
		specs, err := c.store.Load(ctx)
		switch {
		case err != nil:
			c.onError(ClientError{
				Kind:      ErrStore,
				Index:     -1,
				Cause:     fmt.Errorf("load endpoints: %w", err),
				Timestamp: c.env.clock.Now(),
			})
		case specs != nil:
			return specs
		}
	}
	return append([]EndpointSpec(nil), c.cfg.Endpoints...)
}

// saveSpecs queues specs for the save goroutine without blocking the
// event loop. A list still waiting to be written is replaced.
func (c *Client) saveSpecs(specs []EndpointSpec) {
	c.saveMu.Lock()
	c.savePending = append([]EndpointSpec{}, specs...)
	c.saveQueued = true
	c.saveMu.Unlock()

	select {
	case c.saveWake <- struct{}{}:
	default:
	}
}

// saveLoop writes queued lists in order until ctx is canceled, then
// flushes whatever is still queued.
func (c *Client) saveLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-c.saveWake:
			c.flushSave()
		case <-ctx.Done():
			c.flushSave()
			return
		}
	}
}

func (c *Client) flushSave() {
	c.saveMu.Lock()
	specs, queued := c.savePending, c.saveQueued
	c.savePending, c.saveQueued = nil, false
	c.saveMu.Unlock()
	if !queued {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeSaveTimeout)
	defer cancel()
	if err := c.store.Save(ctx, specs); err != nil {
		report := func() {
			c.onError(ClientError{
				Kind:      ErrStore,
				Index:     -1,
				Cause:     fmt.Errorf("save endpoints: %w", err),
				Timestamp: c.env.clock.Now(),
			})
		}
		if !c.loop.Post(report) {
			report()
		}
	}
}
