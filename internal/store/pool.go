package store

import (
	"context"
	"sync"
)

// Factory creates a fresh Store handle for one worker.
type Factory func() (Store, error)

// Pool hands out per-worker Store handles. Handles are created lazily on
// first use, reused for a worker's lifetime, and never shared between
// workers; a worker returns its handle when it exits.
type Pool struct {
	handles chan Store
	factory Factory
	mu      sync.Mutex
	stats   PoolStats
}

// PoolStats tracks pool usage.
type PoolStats struct {
	Created   int64
	Reused    int64
	Discarded int64
}

// NewPool creates a pool that retains up to size idle handles.
func NewPool(factory Factory, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		handles: make(chan Store, size),
		factory: factory,
	}
}

// Get returns an idle handle or creates a new one. It never blocks.
func (p *Pool) Get(ctx context.Context) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case st := <-p.handles:
		p.mu.Lock()
		p.stats.Reused++
		p.mu.Unlock()
		return st, nil
	default:
	}

	st, err := p.factory()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.stats.Created++
	p.mu.Unlock()

	return st, nil
}

// Put returns a handle to the pool. Handles beyond the pool's capacity are
// discarded.
func (p *Pool) Put(st Store) {
	if st == nil {
		return
	}
	select {
	case p.handles <- st:
	default:
		p.mu.Lock()
		p.stats.Discarded++
		p.mu.Unlock()
	}
}

// Stats returns a snapshot of pool usage counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
