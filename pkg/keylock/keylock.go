// Package keylock provides an in-process mutex keyed by string.
// Entries are reference counted and removed once nobody holds or waits for
// them, so the map does not grow with the number of distinct keys seen.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Locker serializes callers that share a key. Different keys never block
// each other.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Lock blocks until the key is free or ctx is done. On success it returns a
// release function that must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Locker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
