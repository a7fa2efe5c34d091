package axis

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

type slotState uint8

const (
	slotUnevaluated slotState = iota
	slotClean
	slotDirty
	slotDiverged
)

// slotNode is the dynamic half of a slot: the propagator's cached value and
// state, keyed per receiving object.
type slotNode struct {
	state    slotState
	value    Value
	hasValue bool
	revision uint64
}

// propagator is the fixpoint scheduler. It owns all slot nodes, the dirty
// set, and the wave loop. Waves follow Jacobi iteration: every slot
// evaluated in a wave reads the values committed before the wave started,
// and results are committed together at the wave barrier, so converged
// values do not depend on intra-wave ordering or parallelism.
type propagator struct {
	eng   *Engine
	graph *depGraph

	mu       sync.Mutex
	nodes    map[SlotRef]*slotNode
	dirty    map[SlotRef]struct{}
	inflight map[SlotRef]struct{}

	stats Stats
}

// Stats counts propagator work since engine creation.
type Stats struct {
	Waves       uint64
	Evaluations uint64
	Commits     uint64
}

func newPropagator(eng *Engine) *propagator {
	return &propagator{
		eng:      eng,
		graph:    newDepGraph(),
		nodes:    make(map[SlotRef]*slotNode),
		dirty:    make(map[SlotRef]struct{}),
		inflight: make(map[SlotRef]struct{}),
	}
}

// node returns the slot's node, creating it Unevaluated. Callers hold p.mu.
func (p *propagator) node(ref SlotRef) *slotNode {
	n, ok := p.nodes[ref]
	if !ok {
		n = &slotNode{}
		p.nodes[ref] = n
	}
	return n
}

func (p *propagator) isInFlight(ref SlotRef) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[ref]
	return ok
}

// committedOrUndefined returns the last committed value for ref, degrading
// to Undefined for never-evaluated and non-convergent slots.
func (p *propagator) committedOrUndefined(ref SlotRef) Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[ref]
	if !ok || !n.hasValue || n.state == slotDiverged {
		return Undefined()
	}
	return n.value
}

// committed exposes cached values, for arena reclamation and snapshots.
func (p *propagator) committed(ref SlotRef) (Value, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[ref]
	if !ok || !n.hasValue {
		return Undefined(), false
	}
	return n.value, true
}

// demand produces ref's value for a tracked read: cached when clean,
// Undefined when non-convergent, otherwise evaluated on the spot. Demand
// evaluation reads only committed values, so concurrent demanders of the
// same slot compute the same result.
func (p *propagator) demand(ctx *evalCtx, ref SlotRef) Value {
	p.mu.Lock()
	n := p.node(ref)
	switch n.state {
	case slotClean:
		v := n.value
		p.mu.Unlock()
		return v
	case slotDiverged:
		p.mu.Unlock()
		return Undefined()
	}
	p.mu.Unlock()
	return p.evaluateNow(ctx, ref)
}

// evaluateNow runs a tracked evaluation of ref on the current demand stack
// and commits the result immediately.
func (p *propagator) evaluateNow(ctx *evalCtx, ref SlotRef) Value {
	sub := ctx.child(ref.Obj, ref)
	defer p.eng.pool.releaseCtx(sub)

	sub.stack[ref] = true
	v := p.eng.evaluateSlot(sub, ref)
	delete(sub.stack, ref)

	p.commit(ref, v, sub.depList(), false)
	return v
}

// commit installs a freshly computed value and dependency set for ref,
// replacing the slot's outgoing edges. It reports whether the committed
// value differs from the previous one; on change, direct dependents are
// marked dirty.
func (p *propagator) commit(ref SlotRef, v Value, deps []SlotRef, force bool) bool {
	p.graph.setDeps(ref, deps)

	p.mu.Lock()
	n := p.node(ref)
	changed := force || !n.hasValue || !n.value.Equal(v)
	n.value = v
	n.hasValue = true
	n.state = slotClean
	n.revision++
	delete(p.dirty, ref)
	p.stats.Commits++
	p.mu.Unlock()

	if changed {
		p.markDependentsDirty(ref)
	}
	return changed
}

// markDependentsDirty marks the direct dependents of ref dirty. Transitive
// propagation happens wave by wave as values actually change.
func (p *propagator) markDependentsDirty(ref SlotRef) {
	dependents := p.graph.dependentsOf(ref)
	if len(dependents) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, dep := range dependents {
		n := p.node(dep)
		if n.state == slotClean || n.state == slotUnevaluated {
			n.state = slotDirty
			p.dirty[dep] = struct{}{}
		}
	}
}

// markDirty is the external-input path: force ref dirty regardless of state.
// A condemned slot revives here; new input usually means the definition
// changed, and if the feedback persists the group is just condemned again.
func (p *propagator) markDirty(ref SlotRef) {
	p.mu.Lock()
	n := p.node(ref)
	n.state = slotDirty
	p.dirty[ref] = struct{}{}
	p.mu.Unlock()
}

// eligible returns the dirty slots with no dirty dependency, sorted for a
// stable schedule. An empty result with a non-empty dirty set means the
// residue is cyclic.
func (p *propagator) eligible() ([]SlotRef, int) {
	p.mu.Lock()
	dirtySet := make(map[SlotRef]bool, len(p.dirty))
	for ref := range p.dirty {
		dirtySet[ref] = true
	}
	p.mu.Unlock()

	var out []SlotRef
	for ref := range dirtySet {
		clean := true
		for _, dep := range p.graph.dependenciesOf(ref) {
			if dirtySet[dep] && dep != ref {
				clean = false
				break
			}
		}
		if clean {
			out = append(out, ref)
		}
	}
	if out == nil && len(dirtySet) > 0 {
		// Cyclic residue: recompute the whole dirty front as one Jacobi
		// wave.
		for ref := range dirtySet {
			out = append(out, ref)
		}
	}
	sortRefs(out)
	return out, len(dirtySet)
}

func sortRefs(refs []SlotRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Obj != refs[j].Obj {
			return refs[i].Obj < refs[j].Obj
		}
		return refs[i].Key < refs[j].Key
	})
}

type waveResult struct {
	ref  SlotRef
	val  Value
	deps []SlotRef
}

// stabilize drives propagation waves until quiescence, a divergence
// classification, or an exhausted wall-clock budget. Divergence is scoped:
// the offending cyclic group is terminated and everything else keeps going.
func (p *propagator) stabilize(ctx context.Context) error {
	cfg := p.eng.cfg
	start := time.Now()
	changeCount := make(map[SlotRef]int)

	var firstFault error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, dirtyCount := p.eligible()
		if dirtyCount == 0 {
			return firstFault
		}
		if cfg.wallClock > 0 && time.Since(start) > cfg.wallClock {
			fault := p.abortRemaining(changeCount, "wall-clock budget exceeded")
			if firstFault == nil {
				firstFault = fault
			}
			return firstFault
		}

		results := p.runWave(ctx, batch)

		// Commit barrier: every result lands at once, then divergence
		// bookkeeping runs over the committed values.
		for _, res := range results {
			if !p.commit(res.ref, res.val, res.deps, false) {
				continue
			}
			changeCount[res.ref]++
			if fault := p.classify(res.ref, res.val, changeCount); fault != nil {
				if firstFault == nil {
					firstFault = fault
				}
			}
		}
	}
}

// runWave evaluates the batch with bounded parallelism. All batch members
// are in flight for the duration, so any read among them resolves to the
// previous wave's committed value.
func (p *propagator) runWave(ctx context.Context, batch []SlotRef) []waveResult {
	p.mu.Lock()
	for _, ref := range batch {
		p.inflight[ref] = struct{}{}
	}
	p.stats.Waves++
	p.stats.Evaluations += uint64(len(batch))
	wave := p.stats.Waves
	p.mu.Unlock()

	for _, ext := range p.eng.snapshotExtensions() {
		ext.OnWave(wave, batch)
	}

	defer func() {
		p.mu.Lock()
		for _, ref := range batch {
			delete(p.inflight, ref)
		}
		p.mu.Unlock()
	}()

	workers := p.eng.cfg.parallelism
	if workers > len(batch) {
		workers = len(batch)
	}
	if workers <= 1 {
		results := make([]waveResult, 0, len(batch))
		for _, ref := range batch {
			results = append(results, p.evaluateOne(ctx, ref))
		}
		return results
	}

	results := make([]waveResult, len(batch))
	var wg sync.WaitGroup
	next := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				results[i] = p.evaluateOne(ctx, batch[i])
			}
		}()
	}
	for i := range batch {
		next <- i
	}
	close(next)
	wg.Wait()
	return results
}

// evaluateOne performs one tracked evaluation without committing.
func (p *propagator) evaluateOne(ctx context.Context, ref SlotRef) waveResult {
	ec := p.eng.pool.acquireCtx(p.eng, ref.Obj, ref)
	defer p.eng.pool.releaseCtx(ec)
	ec.stack[ref] = true
	v := p.eng.evaluateSlot(ec, ref)
	return waveResult{ref: ref, val: v, deps: ec.depList()}
}

// classify checks a just-changed slot against the divergence bounds. A
// numeric value beyond the magnitude bound, or more value changes than the
// wave budget allows, condemns the slot's cyclic group: its members become
// terminally non-convergent and a fault is recorded, never a wrong finite
// value. Divergence is a property of feedback only: a slot outside any
// cycle keeps whatever value it computed, however large, since without
// feedback it cannot grow further on its own.
func (p *propagator) classify(ref SlotRef, v Value, changeCount map[SlotRef]int) error {
	cfg := p.eng.cfg
	exceeded := ""
	if v.Kind() == NumberValue && math.Abs(v.Num()) > cfg.magnitudeBound {
		exceeded = "magnitude bound exceeded"
	} else if changeCount[ref] > cfg.waveBudget {
		exceeded = "wave budget exhausted without fixed point"
	}
	if exceeded == "" {
		return nil
	}

	p.mu.Lock()
	within := make(map[SlotRef]bool, len(p.dirty)+1)
	for r := range p.dirty {
		within[r] = true
	}
	within[ref] = true
	p.mu.Unlock()

	members := p.graph.group(ref, within)
	if len(members) == 1 && !p.selfDependent(ref) {
		return nil
	}
	p.condemn(members)

	fault := &DivergenceError{Group: members, Waves: changeCount[ref], Reason: exceeded}
	p.eng.recordFault(fault)
	return fault
}

// selfDependent reports whether ref's last evaluation read ref itself, the
// one-slot form of a cycle that group() cannot see.
func (p *propagator) selfDependent(ref SlotRef) bool {
	for _, dep := range p.graph.dependenciesOf(ref) {
		if dep == ref {
			return true
		}
	}
	return false
}

// condemn moves slots to the terminal non-convergent state. Their dependents
// stay live: they re-read the slots as Undefined and settle on their own.
func (p *propagator) condemn(members []SlotRef) {
	p.mu.Lock()
	for _, ref := range members {
		n := p.node(ref)
		n.state = slotDiverged
		delete(p.dirty, ref)
	}
	p.mu.Unlock()
	for _, ref := range members {
		p.markDependentsDirty(ref)
	}
}

// abortRemaining condemns everything still dirty. Used when the wall clock
// runs out: converged slots keep their values, the unsettled front is
// classified rather than truncated.
func (p *propagator) abortRemaining(changeCount map[SlotRef]int, reason string) error {
	p.mu.Lock()
	members := make([]SlotRef, 0, len(p.dirty))
	maxWaves := 0
	for ref := range p.dirty {
		members = append(members, ref)
		if changeCount[ref] > maxWaves {
			maxWaves = changeCount[ref]
		}
	}
	p.mu.Unlock()
	sortRefs(members)

	p.condemn(members)
	fault := &DivergenceError{Group: members, Waves: maxWaves, Reason: reason}
	p.eng.recordFault(fault)
	return fault
}

// snapshotStats returns a copy of the counters.
func (p *propagator) snapshotStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
