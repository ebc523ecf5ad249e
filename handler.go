package htmlfwd

import (
	"fmt"
	"sync"
)

// DirectiveFunc handles one application directive. Directive handlers
// run outside the event loop, so they may block.
type DirectiveFunc func(d *Directive) error

type directiveRegistry struct {
	mu       sync.RWMutex
	handlers map[DirectiveKind]DirectiveFunc
}

func newDirectiveRegistry() *directiveRegistry {
	return &directiveRegistry{
		handlers: make(map[DirectiveKind]DirectiveFunc),
	}
}

func (r *directiveRegistry) register(kind DirectiveKind, fn DirectiveFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("nil handler for directive %s", kind)
	}
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for directive %s", kind)
	}
	r.handlers[kind] = fn
	return nil
}

func (r *directiveRegistry) lookup(kind DirectiveKind) (DirectiveFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[kind]
	return fn, ok
}

// dispatch hands d to its handler on a new goroutine. It reports false,
// without calling report, when no handler is registered. Handler errors
// and panics are passed to report from the handler goroutine.
func (r *directiveRegistry) dispatch(d *Directive, report func(ErrorKind, error)) bool {
	fn, ok := r.lookup(d.Kind)
	if !ok {
		return false
	}
	go func() {
		defer func() {
			if p := recover(); p != nil {
				report(ErrHandlerPanic, fmt.Errorf("directive %s handler panicked: %v", d.Kind, p))
			}
		}()
		if err := fn(d); err != nil {
			report(ErrHandlerFailed, fmt.Errorf("directive %s handler: %w", d.Kind, err))
		}
	}()
	return true
}
