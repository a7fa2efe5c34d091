package axis

import (
	"sync"
)

// ctxPool recycles evaluation contexts. Slot evaluation is the engine's hot
// loop; the dependency set and demand stack maps dominate its allocations.
type ctxPool struct {
	pool    sync.Pool
	metrics poolMetrics
}

type poolMetrics struct {
	mu     sync.Mutex
	hits   uint64
	misses uint64
}

func newCtxPool() *ctxPool {
	return &ctxPool{
		pool: sync.Pool{
			New: func() any {
				return &evalCtx{
					deps: make(map[SlotRef]struct{}, 8),
				}
			},
		},
	}
}

// acquireCtx gets a context from the pool, reset for the given evaluation.
func (p *ctxPool) acquireCtx(eng *Engine, owner ObjectID, ref SlotRef) *evalCtx {
	ctx, ok := p.pool.Get().(*evalCtx)
	if ok && ctx.deps != nil {
		for k := range ctx.deps {
			delete(ctx.deps, k)
		}
		p.metrics.mu.Lock()
		p.metrics.hits++
		p.metrics.mu.Unlock()
	} else {
		ctx = &evalCtx{deps: make(map[SlotRef]struct{}, 8)}
		p.metrics.mu.Lock()
		p.metrics.misses++
		p.metrics.mu.Unlock()
	}

	ctx.eng = eng
	ctx.owner = owner
	ctx.slot = ref
	ctx.depth = 0
	ctx.stack = make(map[SlotRef]bool, 4)
	return ctx
}

// releaseCtx returns a context to the pool. The demand stack may be shared
// with a parent context, so only the pointer is dropped here.
func (p *ctxPool) releaseCtx(ctx *evalCtx) {
	if ctx == nil {
		return
	}
	ctx.eng = nil
	ctx.owner = NoObject
	ctx.stack = nil
	p.pool.Put(ctx)
}

// Metrics reports pool hit/miss counters.
func (p *ctxPool) Metrics() (hits, misses uint64) {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()
	return p.metrics.hits, p.metrics.misses
}
