package queries

import (
	"context"
	"fmt"
)

type Registry struct {
	routes map[string]BusFunc
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]BusFunc)}
}

func (r *Registry) Ask(ctx context.Context, query Query) (any, error) {
	route, ok := r.routes[query.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, query.Key())
	}
	return route(ctx, query)
}

// Register routes Q's key to h; duplicates panic.
func Register[Q Query, R any](r *Registry, h Handler[Q, R]) {
	var zero Q
	key := zero.Key()
	if _, dup := r.routes[key]; dup || key == "" {
		panic(fmt.Sprintf("queries: cannot register %q", key))
	}
	r.routes[key] = func(ctx context.Context, raw Query) (any, error) {
		q, ok := raw.(Q)
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot take %T", ErrNoHandler, key, raw)
		}
		return h.Handle(ctx, q)
	}
}
