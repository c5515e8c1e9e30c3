package commands

import (
	"context"
	"fmt"
	"sort"
)

// Registry is the terminal bus: it routes each command to the handler registered for its
// key. Registration happens during wiring; the registry is read-only afterwards.
type Registry struct {
	routes map[string]BusFunc
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]BusFunc)}
}

func (r *Registry) Dispatch(ctx context.Context, cmd Command) (any, error) {
	route, ok := r.routes[cmd.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, cmd.Key())
	}
	return route(ctx, cmd)
}

// Keys lists registered routes in order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Register routes C's key to h. A second handler for the same key panics.
func Register[C Command, R any](r *Registry, h Handler[C, R]) {
	var zero C
	key := zero.Key()
	if key == "" {
		panic("commands: empty key")
	}
	if _, dup := r.routes[key]; dup {
		panic("commands: duplicate handler for " + key)
	}
	r.routes[key] = func(ctx context.Context, raw Command) (any, error) {
		cmd, ok := raw.(C)
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot take %T", ErrNoHandler, key, raw)
		}
		return h.Handle(ctx, cmd)
	}
}
