// Package events routes named events to their handlers. Registries are
// constructed explicitly and passed where needed; there is no package-level
// handler list, so tests can build isolated registries.
package events

import (
	"context"
	"fmt"
	"sync"
)

// Event is a routed occurrence: a name plus its raw payload.
type Event struct {
	Name    string
	Payload []byte

	// Reference identifies the upstream object the event concerns, for
	// example a DocV transaction token.
	Reference string
}

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Registry maps event names to ordered handler chains.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]Handler)}
}

// Register appends a handler to the chain for the given event name.
// Handlers run in registration order.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = append(r.handlers[name], h)
}

// Handles reports whether any handler is registered for the event name.
func (r *Registry) Handles(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handlers[name]) > 0
}

// Dispatch runs the handler chain for the event in order, stopping at the
// first error. Events with no registered handlers dispatch successfully; the
// caller decides whether unhandled names are worth counting.
func (r *Registry) Dispatch(ctx context.Context, event Event) error {
	r.mu.RLock()
	chain := r.handlers[event.Name]
	r.mu.RUnlock()

	for i, h := range chain {
		if err := h.Handle(ctx, event); err != nil {
			return fmt.Errorf("event %q handler %d: %w", event.Name, i, err)
		}
	}
	return nil
}
