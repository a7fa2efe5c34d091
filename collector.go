package axis

import (
	"sort"
	"sync"

	"github.com/axis-lang/axis-go/logstore"
)

// Reserved slot keys through which a collector exposes its folded value and
// multiset size. Insertion dirties these like any other dependency change.
const (
	collectorValueKey = "value"
	collectorCountKey = "count"
)

// Reducer folds a collector's multiset into its exposed value. Fold must be
// insensitive to the order of items: the engine guarantees nothing about
// insertion order. self references the collector object, for reducers whose
// fold is the indexable container itself.
type Reducer interface {
	Name() string
	Fold(self Value, items []Value) Value
}

// Deduper is an optional Reducer refinement: a reducer that is itself a
// structural-equality set. Duplicate inserted values are silently dropped
// before they reach the multiset or the durable log.
type Deduper interface {
	Drops(items []Value, v Value) bool
}

// collectorState is the mutable half of a Collector object: the unordered
// multiset, the optional reducer, and the optional durable log. Concurrent
// insertions into the same collector are serialized here.
type collectorState struct {
	mu       sync.Mutex
	items    []Value
	reducer  Reducer
	log      logstore.Log
	replayed bool
}

func newCollectorState(reducer Reducer, log logstore.Log) *collectorState {
	return &collectorState{reducer: reducer, log: log, replayed: log == nil}
}

// attachCollector wires collector state and the reserved read slots onto a
// freshly allocated object.
func attachCollector(obj *Object, reducer Reducer, log logstore.Log) {
	obj.coll = newCollectorState(reducer, log)
	obj.slots[collectorValueKey] = &Slot{}
	obj.slots[collectorCountKey] = &Slot{}
	obj.order = append(obj.order, collectorValueKey, collectorCountKey)
}

// snapshot returns a copy of the multiset in canonical value order. The
// order is a stable convention for indexed access, not an insertion order.
func (c *collectorState) snapshot() []Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Value, len(c.items))
	copy(out, c.items)
	sort.Slice(out, func(i, j int) bool { return out[i].lessThan(out[j]) })
	return out
}

func (c *collectorState) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// insertValue implements the insert operation: locate the nearest collector
// on the target's prototype chain and append. Inserting into anything
// without a collector anywhere on its chain is a no-op, never an error.
func (e *Engine) insertValue(ctx *evalCtx, target, v Value) {
	obj := e.arena.get(target.Object())
	for obj != nil && obj.coll == nil {
		obj = e.arena.get(obj.proto)
	}
	if obj == nil {
		return
	}
	op := &Operation{Kind: OpInsert, Ref: SlotRef{Obj: obj.id, Key: collectorValueKey}, Obj: obj.id, Engine: e}
	e.wrapOp(op, func() Value {
		e.insertInto(obj, v, false)
		return v
	})
}

// insertInto appends v to obj's multiset. Write-ahead ordering: when a
// durable log is attached, the append must commit before the insertion
// becomes visible to any read; a failed append drops the insertion and
// records a fault. The collector's exposed slots are then recommitted as
// changed, dirtying every dependent exactly like any other value change.
func (e *Engine) insertInto(obj *Object, v Value, replaying bool) {
	c := obj.coll
	if !replaying {
		e.replayIfNeeded(obj)
	}

	c.mu.Lock()
	if d, ok := c.reducer.(Deduper); ok && d.Drops(c.items, v) {
		c.mu.Unlock()
		return
	}
	if limit := e.cfg.collectorLimit; limit > 0 && len(c.items) >= limit {
		c.mu.Unlock()
		e.recordFault(&ResourceLimitError{Resource: "collector", Obj: obj.id, Limit: limit})
		return
	}
	if c.log != nil && !replaying {
		rec, err := encodeRecord(v)
		if err == nil {
			err = c.log.Append(rec)
		}
		if err != nil {
			c.mu.Unlock()
			e.recordFault(&AppendError{Obj: obj.id, Cause: err})
			return
		}
	}
	c.items = append(c.items, v)
	c.mu.Unlock()

	if !replaying {
		e.refreshCollector(obj)
	}
}

// refreshCollector recommits the collector's exposed slots. The folded value
// of a reducer-less collector is the collector reference itself, whose
// identity never changes, so the commit is forced to propagate regardless.
func (e *Engine) refreshCollector(obj *Object) {
	e.prop.commit(SlotRef{Obj: obj.id, Key: collectorValueKey}, e.foldCollector(obj), nil, true)
	e.prop.commit(SlotRef{Obj: obj.id, Key: collectorCountKey}, Number(float64(obj.coll.size())), nil, false)
}

// foldCollector computes the exposed value: reducer(multiset) when a reducer
// is attached, the indexable collector itself otherwise.
func (e *Engine) foldCollector(obj *Object) Value {
	c := obj.coll
	if c.reducer == nil {
		return ObjectRef(obj.id)
	}
	return c.reducer.Fold(ObjectRef(obj.id), c.snapshot())
}

// collectorSlotValue evaluates the reserved collector slots.
func (e *Engine) collectorSlotValue(obj *Object, key string) Value {
	e.replayIfNeeded(obj)
	switch key {
	case collectorValueKey:
		return e.foldCollector(obj)
	case collectorCountKey:
		return Number(float64(obj.coll.size()))
	}
	return Undefined()
}

// replayIfNeeded rebuilds a log-backed collector's multiset before its first
// use. A log that fails to replay cleanly leaves the collector empty and
// records a recoverable fault.
func (e *Engine) replayIfNeeded(obj *Object) {
	c := obj.coll
	c.mu.Lock()
	if c.replayed {
		c.mu.Unlock()
		return
	}
	c.replayed = true
	log := c.log
	c.mu.Unlock()

	err := log.Replay(func(rec logstore.Record) error {
		v, err := decodeRecord(rec)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.items = append(c.items, v)
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		c.mu.Lock()
		c.items = nil
		c.mu.Unlock()
		e.recordFault(&ReplayError{Obj: obj.id, Cause: err})
		e.log.Warn("collector log replay failed, falling back to empty multiset",
			"object", obj.id, "error", err)
	}
}

// indexCollector resolves positional access into a collector's multiset in
// canonical order. Reads depend on the collector's value slot, so inserts
// re-trigger them.
func (e *Engine) indexCollector(ctx *evalCtx, base, at Value) Value {
	obj := e.arena.get(base.Object())
	for obj != nil && obj.coll == nil {
		obj = e.arena.get(obj.proto)
	}
	if obj == nil || at.Kind() != NumberValue {
		return Undefined()
	}
	if obj.kind == TemplateKind && !e.insideTemplate(ctx.owner, obj) {
		return Undefined()
	}
	ctx.record(SlotRef{Obj: obj.id, Key: collectorValueKey})
	e.replayIfNeeded(obj)

	items := obj.coll.snapshot()
	i := int(at.Num())
	if i < 0 || i >= len(items) {
		return Undefined()
	}
	return items[i]
}

// SumReducer folds numeric items into their arithmetic sum. Non-numeric
// items contribute nothing. The fold is commutative, so the result is
// independent of insertion order.
type SumReducer struct{}

func (SumReducer) Name() string { return "sum" }

func (SumReducer) Fold(_ Value, items []Value) Value {
	total := 0.0
	for _, v := range items {
		if v.Kind() == NumberValue {
			total += v.Num()
		}
	}
	return Number(total)
}

// SetReducer deduplicates by structural equality: the collector behaves as a
// hashset, and its folded value is the indexable set itself.
type SetReducer struct{}

func (SetReducer) Name() string { return "set" }

func (SetReducer) Fold(self Value, items []Value) Value {
	return self
}

// Drops reports structural duplicates so they never enter the multiset.
func (SetReducer) Drops(items []Value, v Value) bool {
	for _, existing := range items {
		if existing.Equal(v) {
			return true
		}
	}
	return false
}
