package platform

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of in-flight requests.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// LocalGate is an in-process counting semaphore.
type LocalGate struct {
	sem *semaphore.Weighted
}

// NewLocalGate allows at most n concurrent holders.
func NewLocalGate(n int) *LocalGate {
	if n <= 0 {
		n = 1
	}
	return &LocalGate{sem: semaphore.NewWeighted(int64(n))}
}

func (g *LocalGate) Acquire(ctx context.Context) error { return g.sem.Acquire(ctx, 1) }
func (g *LocalGate) Release()                          { g.sem.Release(1) }

// GateSet composes the global gate with one gate per business. It is
// created for a single batch and dropped with it, so the per-business map
// never outlives the run.
type GateSet struct {
	global      Gate
	perBusiness int

	mu         sync.Mutex
	businesses map[string]*LocalGate
}

// NewGateSet creates a gate set with the given global gate and a
// per-business limit.
func NewGateSet(global Gate, perBusiness int) *GateSet {
	return &GateSet{
		global:      global,
		perBusiness: perBusiness,
		businesses:  make(map[string]*LocalGate),
	}
}

func (g *GateSet) business(id string) *LocalGate {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.businesses[id]
	if !ok {
		b = NewLocalGate(g.perBusiness)
		g.businesses[id] = b
	}
	return b
}

// Acquire takes the business slot first, then the global slot, so a request
// waiting on its business never holds a global slot. The returned func
// releases both.
func (g *GateSet) Acquire(ctx context.Context, businessID string) (func(), error) {
	b := g.business(businessID)
	if err := b.Acquire(ctx); err != nil {
		return nil, err
	}
	if err := g.global.Acquire(ctx); err != nil {
		b.Release()
		return nil, err
	}
	return func() {
		g.global.Release()
		b.Release()
	}, nil
}
