package axis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/axis-lang/axis-go/logstore"
)

// Engine composes the object arena, the propagator, and the extension chain
// into the top-level driver: construct objects, pull slot values, bring the
// graph to quiescence, report faults.
//
// Mutating entry points (Construct, Clone, Set, Define, Insert, Call,
// Stabilize, Get) belong to a single driver goroutine; wave parallelism is
// internal and does not change that contract. Faults, Stats, Peek, and
// ExportDependencyGraph may be read from any goroutine.
type Engine struct {
	arena *arena
	prop  *propagator
	pool  *ctxPool
	cfg   config
	log   *slog.Logger

	mu         sync.RWMutex
	extensions []Extension
	roots      []ObjectID
	logs       []logstore.Log

	faultMu sync.Mutex
	faults  []error
}

type config struct {
	waveBudget     int
	magnitudeBound float64
	wallClock      time.Duration
	parallelism    int
	collectorLimit int
	callDepth      int
}

// Option is a modifier for engines.
type Option func(*Engine)

// WithWaveBudget sets the per-group wave budget W: a cyclic group whose
// values are still changing after W waves is classified divergent.
func WithWaveBudget(w int) Option {
	return func(e *Engine) {
		if w > 0 {
			e.cfg.waveBudget = w
		}
	}
}

// WithMagnitudeBound sets the numeric magnitude beyond which a cyclic slot
// is classified divergent immediately.
func WithMagnitudeBound(b float64) Option {
	return func(e *Engine) {
		if b > 0 {
			e.cfg.magnitudeBound = b
		}
	}
}

// WithWallClock bounds one stabilization pass in wall-clock time. Zero means
// no wall-clock bound.
func WithWallClock(d time.Duration) Option {
	return func(e *Engine) { e.cfg.wallClock = d }
}

// WithParallelism sets how many slots of a wave may evaluate concurrently.
// Converged values are identical at any setting.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cfg.parallelism = n
		}
	}
}

// WithCollectorLimit bounds every collector's multiset size. Zero means
// unbounded.
func WithCollectorLimit(n int) Option {
	return func(e *Engine) { e.cfg.collectorLimit = n }
}

// WithCallDepth bounds function invocation depth.
func WithCallDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cfg.callDepth = n
		}
	}
}

// WithLogger sets the engine's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithExtension registers an extension at construction.
func WithExtension(ext Extension) Option {
	return func(e *Engine) {
		if err := e.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// NewEngine creates an engine with optional configuration.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		arena: newArena(),
		pool:  newCtxPool(),
		cfg: config{
			waveBudget:     100,
			magnitudeBound: 1e12,
			parallelism:    runtime.NumCPU(),
			callDepth:      256,
		},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	e.prop = newPropagator(e)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UseExtension registers an extension, keeping the chain ordered.
func (e *Engine) UseExtension(ext Extension) error {
	e.mu.Lock()
	e.extensions = append(e.extensions, ext)
	sort.SliceStable(e.extensions, func(i, j int) bool {
		return e.extensions[i].Order() < e.extensions[j].Order()
	})
	e.mu.Unlock()

	return ext.Init(e)
}

func (e *Engine) snapshotExtensions() []Extension {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exts := make([]Extension, len(e.extensions))
	copy(exts, e.extensions)
	return exts
}

// wrapOp runs fn through the extension chain (last registered wraps first).
func (e *Engine) wrapOp(op *Operation, fn func() Value) Value {
	exts := e.snapshotExtensions()
	next := fn
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() Value {
			return ext.Wrap(currentNext, op)
		}
	}
	return next()
}

// recordFault stores a fault and notifies extensions. Faults are local:
// recording one never stops the engine.
func (e *Engine) recordFault(err error) {
	e.faultMu.Lock()
	e.faults = append(e.faults, err)
	e.faultMu.Unlock()

	e.log.Warn("fault recorded", "error", err)
	for _, ext := range e.snapshotExtensions() {
		ext.OnFault(err, e)
	}
}

// Faults returns every fault recorded so far.
func (e *Engine) Faults() []error {
	e.faultMu.Lock()
	defer e.faultMu.Unlock()
	out := make([]error, len(e.faults))
	copy(out, e.faults)
	return out
}

// Stats returns propagator work counters.
func (e *Engine) Stats() Stats {
	return e.prop.snapshotStats()
}

// ExportDependencyGraph returns a snapshot of the discovered edges: each
// slot maps to the slots that depend on it.
func (e *Engine) ExportDependencyGraph() map[SlotRef][]SlotRef {
	return e.prop.graph.export()
}

// Logger returns the engine's structured logger.
func (e *Engine) Logger() *slog.Logger {
	return e.log
}

// Construct allocates a top-level object from a literal and pins it as a
// root for reclamation.
func (e *Engine) Construct(lit *ObjectLit) Value {
	obj := e.construct(lit, NoObject)
	e.addRoot(obj.id)
	return objectOrFunctionRef(e, obj)
}

// NewCollector allocates a collector object with an optional reducer and
// durable log. A log-backed collector replays its log before first use.
func (e *Engine) NewCollector(reducer Reducer, log logstore.Log) Value {
	obj := e.arena.alloc(CollectorKind, NoObject, NoObject)
	attachCollector(obj, reducer, log)
	e.addRoot(obj.id)
	if log != nil {
		e.mu.Lock()
		e.logs = append(e.logs, log)
		e.mu.Unlock()
	}
	return ObjectRef(obj.id)
}

// Clone clones a base object value with keyed overrides and positional
// arguments, outside any tracked evaluation.
func (e *Engine) Clone(base Value, named []SlotDef, args ...Value) Value {
	obj := e.arena.get(base.Object())
	if obj == nil {
		return Undefined()
	}
	out := e.clone(obj, named, args, false)
	e.addRoot(out.id)
	return objectOrFunctionRef(e, out)
}

func (e *Engine) addRoot(id ObjectID) {
	e.mu.Lock()
	e.roots = append(e.roots, id)
	e.mu.Unlock()
}

// Release unpins a root object; it becomes reclaimable once unreachable.
func (e *Engine) Release(v Value) {
	id := v.Object()
	e.mu.Lock()
	e.roots = removeElement(e.roots, id)
	e.mu.Unlock()
}

// Reclaim drops arena objects unreachable from live roots and returns how
// many were reclaimed. Log-backed collectors survive regardless.
func (e *Engine) Reclaim() int {
	e.mu.RLock()
	roots := make([]ObjectID, len(e.roots))
	copy(roots, e.roots)
	e.mu.RUnlock()
	return e.arena.reclaim(roots, e.prop.committed)
}

// Get materializes one property and brings the graph to quiescence. Missing
// properties and privacy misses are Undefined, not errors; the returned
// error reports engine faults raised by this stabilization.
func (e *Engine) Get(ctx context.Context, target Value, key string) (Value, error) {
	id := target.Object()
	if id == NoObject {
		return Undefined(), nil
	}
	ec := e.pool.acquireCtx(e, NoObject, SlotRef{})
	e.getProperty(ec, id, key)
	e.pool.releaseCtx(ec)

	if err := e.prop.stabilize(ctx); err != nil {
		return e.read(target, key), err
	}
	return e.read(target, key), nil
}

// read returns the committed value of target.key after stabilization,
// applying the privacy and template gates for an external reader.
func (e *Engine) read(target Value, key string) Value {
	ec := e.pool.acquireCtx(e, NoObject, SlotRef{})
	defer e.pool.releaseCtx(ec)
	return e.getProperty(ec, target.Object(), key)
}

// Set overwrites a slot with a literal value and propagates the change to
// quiescence. This is the external input path.
func (e *Engine) Set(ctx context.Context, target Value, key string, v Value) error {
	obj := e.arena.get(target.Object())
	if obj == nil {
		return fmt.Errorf("set %s: not an object", key)
	}
	if slot, ok := obj.slots[key]; ok {
		slot.expr = &Lit{Val: v}
	} else {
		obj.slots[key] = &Slot{expr: &Lit{Val: v}}
		obj.order = append(obj.order, key)
	}
	e.prop.markDirty(SlotRef{Obj: obj.id, Key: key})
	return e.prop.stabilize(ctx)
}

// Define installs or overwrites a slot's expression and propagates. Unlike
// Set the slot stays reactive: the expression re-evaluates whenever its
// dependencies change.
func (e *Engine) Define(ctx context.Context, target Value, key string, expr Expr) error {
	obj := e.arena.get(target.Object())
	if obj == nil {
		return fmt.Errorf("define %s: not an object", key)
	}
	if slot, ok := obj.slots[key]; ok {
		slot.expr = expr
	} else {
		obj.slots[key] = &Slot{expr: expr}
		obj.order = append(obj.order, key)
	}
	e.prop.markDirty(SlotRef{Obj: obj.id, Key: key})
	return e.prop.stabilize(ctx)
}

// Insert appends a value to a collector from outside any evaluation and
// propagates. Inserting into a non-collector is a no-op.
func (e *Engine) Insert(ctx context.Context, target Value, v Value) error {
	ec := e.pool.acquireCtx(e, NoObject, SlotRef{})
	e.insertValue(ec, target, v)
	e.pool.releaseCtx(ec)
	return e.prop.stabilize(ctx)
}

// Call invokes a function value with positional arguments and stabilizes.
func (e *Engine) Call(ctx context.Context, fn Value, args ...Value) (Value, error) {
	ec := e.pool.acquireCtx(e, NoObject, SlotRef{})
	v := e.invoke(ec, fn, args)
	e.pool.releaseCtx(ec)

	if err := e.prop.stabilize(ctx); err != nil {
		return v, err
	}
	return v, nil
}

// Stabilize drives propagation until quiescence or divergence.
func (e *Engine) Stabilize(ctx context.Context) error {
	return e.prop.stabilize(ctx)
}

// evaluateSlot runs the defining expression for ref under the tracker,
// through the extension chain. The defining slot may live anywhere on the
// prototype chain; it is evaluated with ref's object as owner so sibling
// references resolve against the receiver (late binding), and an edge to the
// defining slot keeps prototype overwrites propagating to inheritors.
func (e *Engine) evaluateSlot(ctx *evalCtx, ref SlotRef) Value {
	obj := e.arena.get(ref.Obj)
	if obj == nil {
		return Undefined()
	}
	slot, def := e.findSlot(obj, ref.Key, ref.Obj)
	if slot == nil {
		return Undefined()
	}
	if def.id != ref.Obj {
		ctx.record(SlotRef{Obj: def.id, Key: ref.Key})
	}
	if slot.expr == nil {
		if def.coll != nil {
			return e.collectorSlotValue(def, ref.Key)
		}
		return Undefined()
	}

	op := &Operation{Kind: OpEvaluate, Ref: ref, Obj: ref.Obj, Engine: e}
	return e.wrapOp(op, func() Value {
		return e.evalExpr(ctx, slot.expr)
	})
}

// Dispose shuts down extensions and closes collector logs.
func (e *Engine) Dispose() error {
	for _, ext := range e.snapshotExtensions() {
		if err := ext.Dispose(e); err != nil {
			return fmt.Errorf("disposing extension %s: %w", ext.Name(), err)
		}
	}
	e.mu.Lock()
	logs := e.logs
	e.logs = nil
	e.mu.Unlock()
	for _, l := range logs {
		if err := l.Close(); err != nil {
			return fmt.Errorf("closing collector log: %w", err)
		}
	}
	return nil
}
