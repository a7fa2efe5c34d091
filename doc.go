// Package axis provides a prototype-based object model with an automatic,
// cycle-tolerant reactive dependency graph.
//
// # Overview
//
// Axis organizes programs around three core concepts:
//
//  1. Objects: prototype-linked bundles of named slots, each slot holding an expression
//  2. The dependency graph: edges discovered automatically while expressions evaluate
//  3. The propagator: a wave-based engine that re-evaluates dirty slots to a fixpoint
//
// # Basic Usage
//
// Construct an object from a literal and read slots through the engine:
//
//	eng := axis.NewEngine()
//	defer eng.Dispose()
//
//	obj := eng.Construct(&axis.ObjectLit{Slots: []axis.SlotDef{
//	    {Name: "width", Expr: &axis.Lit{Val: axis.Number(3)}},
//	    {Name: "height", Expr: &axis.Lit{Val: axis.Number(4)}},
//	    {Name: "area", Expr: &axis.Binary{
//	        Op: axis.OpMul,
//	        L:  &axis.Ident{Name: "width"},
//	        R:  &axis.Ident{Name: "height"},
//	    }},
//	}})
//
//	area, err := eng.Get(ctx, obj, "area") // Number(12)
//
// Updating a slot propagates through every dependent automatically:
//
//	err = eng.Set(ctx, obj, "width", axis.Number(10))
//	area, err = eng.Get(ctx, obj, "area") // Number(40)
//
// # Values
//
// Every expression produces a Value: one of Undefined, Number, String,
// Boolean, ObjectRef or FunctionRef. Operations are total; ill-typed
// combinations and missing slots reduce to Undefined rather than failing,
// so a partially constructed graph always evaluates.
//
// # Prototypes and Cloning
//
// Clone produces a new object whose prototype is the base. Slots not
// overridden are inherited; overriding a slot in the clone never disturbs
// the base or sibling clones:
//
//	point := eng.Construct(&axis.ObjectLit{Slots: []axis.SlotDef{
//	    {Name: "x", Expr: &axis.Lit{Val: axis.Number(0)}},
//	    {Name: "y", Expr: &axis.Lit{Val: axis.Number(0)}},
//	}})
//
//	p2 := eng.Clone(point, []axis.SlotDef{
//	    {Name: "x", Expr: &axis.Lit{Val: axis.Number(5)}},
//	})
//
// # Cycles
//
// Slots may reference each other cyclically. A cyclic read observes the
// previously committed value (Undefined on the first pass), and the
// propagator runs Jacobi-style waves until the group reaches a fixpoint.
// Groups that keep changing past the configured wave budget, or whose
// values grow without bound, are classified as divergent: their slots
// read as Undefined and a DivergenceError is recorded on the engine.
//
// # Collectors
//
// Collectors accumulate inserted values into a multiset and fold them
// with a Reducer:
//
//	total := eng.NewCollector(axis.SumReducer{}, nil)
//	err := eng.Insert(ctx, total, axis.Number(2))
//	err = eng.Insert(ctx, total, axis.Number(3))
//
//	sum, err := eng.Get(ctx, total, "value") // Number(5)
//
// Backed by a logstore.Log, a collector appends each insert to the log
// before it becomes visible and replays the log lazily on first read,
// so collector contents survive restarts.
//
// # Templates and Functions
//
// Templates are inert: reading a slot of a template from outside yields
// Undefined and evaluates nothing. A template with a result slot is a
// function; Call clones it, binds arguments and reads the result:
//
//	out, err := eng.Call(ctx, fn, axis.Number(7))
//
// # Handles
//
// Handle pins an object/slot pair for repeated access:
//
//	h := eng.Accessor(obj, "area")
//	v, err := h.Get(ctx)
//	v, ok := h.Peek()
//	err = h.Set(ctx, axis.Number(99))
//
// # Extensions
//
// Extensions observe and wrap engine operations through lifecycle hooks:
//
//	type TracingExtension struct {
//	    axis.BaseExtension
//	}
//
//	func (e *TracingExtension) Wrap(next func() axis.Value, op *axis.Operation) axis.Value {
//	    log.Printf("begin %s %v", op.Kind, op.Ref)
//	    v := next()
//	    log.Printf("end %s", op.Kind)
//	    return v
//	}
//
//	eng := axis.NewEngine(axis.WithExtension(&TracingExtension{
//	    BaseExtension: axis.NewBaseExtension("tracing"),
//	}))
package axis
