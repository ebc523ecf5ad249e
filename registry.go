package htmlfwd

// Registry is the ordered set of endpoints. An endpoint's position is
// the index used by observer commands and by update frames. All methods
// must be called on the event loop.
type Registry struct {
	env       *endpointEnv
	bus       *Bus
	endpoints []*Endpoint
}

func newRegistry(env *endpointEnv, bus *Bus) *Registry {
	r := &Registry{env: env, bus: bus}
	bus.snapshot = r.States
	return r
}

// Reconfigure tears down every existing endpoint and replaces the set
// with fresh endpoints built from specs, in order. New endpoints start
// Connecting with no attempt in flight. Observers get a full reload.
func (r *Registry) Reconfigure(specs []EndpointSpec) {
	for _, e := range r.endpoints {
		e.close()
	}

	endpoints := make([]*Endpoint, len(specs))
	for i, spec := range specs {
		endpoints[i] = newEndpoint(r.env, i, spec, r.endpointChanged)
	}
	r.endpoints = endpoints
	r.env.log.WithField("endpoints", len(endpoints)).Info("registry reconfigured")

	r.bus.BroadcastReload(r.States())
}

// Get returns the endpoint at index. The error is an *IndexError when
// index is out of range.
func (r *Registry) Get(index int) (*Endpoint, error) {
	if index < 0 || index >= len(r.endpoints) {
		return nil, &IndexError{Index: index, Len: len(r.endpoints)}
	}
	return r.endpoints[index], nil
}

// Len returns the number of endpoints.
func (r *Registry) Len() int {
	return len(r.endpoints)
}

// Specs returns the label and host of every endpoint, in order.
func (r *Registry) Specs() []EndpointSpec {
	specs := make([]EndpointSpec, len(r.endpoints))
	for i, e := range r.endpoints {
		specs[i] = EndpointSpec{Label: e.label, Host: e.host}
	}
	return specs
}

// States returns the current state of every endpoint, in order.
func (r *Registry) States() []EndpointState {
	now := r.env.clock.Now()
	states := make([]EndpointState, len(r.endpoints))
	for i, e := range r.endpoints {
		states[i] = e.State(now)
	}
	return states
}

// ConnectAll calls Connect on every endpoint.
func (r *Registry) ConnectAll() {
	for _, e := range r.endpoints {
		e.Connect()
	}
}

// DisconnectAll calls Disconnect on every endpoint.
func (r *Registry) DisconnectAll() {
	for _, e := range r.endpoints {
		e.Disconnect()
	}
}

// Close releases every endpoint's timers and connection without
// notifying observers. The registry is empty afterwards.
func (r *Registry) Close() {
	for _, e := range r.endpoints {
		e.close()
	}
	r.endpoints = nil
}

func (r *Registry) endpointChanged(e *Endpoint) {
	// An endpoint torn down by Reconfigure no longer owns its index.
	if e.index >= len(r.endpoints) || r.endpoints[e.index] != e {
		return
	}
	r.bus.BroadcastUpdate(e.index, len(r.endpoints), e.Snapshot(r.env.clock.Now()))
}
