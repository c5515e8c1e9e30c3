// Package locks serializes work per key (one booking at a time) without any global lock.
package locks

import (
	"context"
	"sync"
)

type heldKey struct{ key string }

type entry struct {
	sem  chan struct{}
	refs int
}

// Keyed hands out one mutex per key. Entries are dropped once nobody waits on them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done. The returned context marks key as held,
// so a nested Lock for the same key on that context returns immediately.
func (k *Keyed) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	if Held(ctx, key) {
		return ctx, func() {}, nil
	}
	e := k.acquire(key)
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return ctx, nil, ctx.Err()
	}
	var once sync.Once
	unlock := func() {
		once.Do(func() {
			<-e.sem
			k.release(key, e)
		})
	}
	return context.WithValue(ctx, heldKey{key}, true), unlock, nil
}

// Held reports whether ctx was returned by Lock for key.
func Held(ctx context.Context, key string) bool {
	held, _ := ctx.Value(heldKey{key}).(bool)
	return held
}

func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.entries == nil {
		k.entries = make(map[string]*entry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
