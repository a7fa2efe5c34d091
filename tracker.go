package axis

// The dependency tracker records, for each slot evaluation, the set of other
// slots read. Edges are discovered dynamically: whatever a slot's expression
// actually touches this revision is its dependency set, nothing else.

// evalCtx carries the state of one tracked slot evaluation. Contexts are
// pooled; see pool.go.
type evalCtx struct {
	eng   *Engine
	owner ObjectID // object whose slot is being evaluated
	slot  SlotRef  // the slot under evaluation
	deps  map[SlotRef]struct{}
	stack map[SlotRef]bool // demand stack for cycle detection
	depth int              // function invocation depth
}

// record notes that the current evaluation read ref.
func (ctx *evalCtx) record(ref SlotRef) {
	ctx.deps[ref] = struct{}{}
}

// depList returns the recorded dependency set as a slice.
func (ctx *evalCtx) depList() []SlotRef {
	if len(ctx.deps) == 0 {
		return nil
	}
	out := make([]SlotRef, 0, len(ctx.deps))
	for ref := range ctx.deps {
		out = append(out, ref)
	}
	return out
}

// child derives a context for evaluating ref on owner, sharing the demand
// stack and call depth but collecting a fresh dependency set.
func (ctx *evalCtx) child(owner ObjectID, ref SlotRef) *evalCtx {
	next := ctx.eng.pool.acquireCtx(ctx.eng, owner, ref)
	next.stack = ctx.stack
	next.depth = ctx.depth
	return next
}

// readSlot is every get() the tracker sees: record the edge, then produce
// the slot's value. A read of a slot that is currently being computed, on
// this demand stack or in the wave in flight, resolves to its previously
// committed value instead of blocking, which is what lets cyclic feedback
// make progress across waves.
func (ctx *evalCtx) readSlot(ref SlotRef) Value {
	ctx.record(ref)
	if ctx.stack[ref] || ctx.eng.prop.isInFlight(ref) {
		return ctx.eng.prop.committedOrUndefined(ref)
	}
	return ctx.eng.prop.demand(ctx, ref)
}
