package processor

import (
	"context"
	"sync"
)

// BusyGuard is a try-acquire flag. A second acquire of a held key fails
// immediately; callers never wait for the holder.
type BusyGuard interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// MemoryBusyGuard is the single-process BusyGuard
type MemoryBusyGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryBusyGuard creates an empty guard
func NewMemoryBusyGuard() *MemoryBusyGuard {
	return &MemoryBusyGuard{held: make(map[string]struct{})}
}

// TryAcquire takes key if it is free. release may be called more than once.
func (g *MemoryBusyGuard) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return nil, false, nil
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, true, nil
}

// Held reports whether key is currently taken
func (g *MemoryBusyGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.held[key]
	return busy
}
