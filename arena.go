package axis

import (
	"sync"
)

// ObjectID is a non-owning index into the arena. Cross-object references are
// plain indices, so referential cycles never form ownership cycles.
type ObjectID int32

// NoObject is the absent object reference.
const NoObject ObjectID = -1

// ObjectKind discriminates plain objects, inert templates, and collectors.
type ObjectKind uint8

const (
	// PlainKind is an ordinary active object.
	PlainKind ObjectKind = iota
	// TemplateKind is inert: external reads yield Undefined and body side
	// effects do not execute.
	TemplateKind
	// CollectorKind accepts unordered multi-writer insertion.
	CollectorKind
)

func (k ObjectKind) String() string {
	switch k {
	case TemplateKind:
		return "template"
	case CollectorKind:
		return "collector"
	default:
		return "plain"
	}
}

// Slot is the static half of a named lazily-evaluated property: its
// expression and markers. The dynamic half (cached value, dirty state,
// revision) lives in the propagator, keyed per receiving object, so that a
// slot inherited through the prototype chain is cached per receiver.
type Slot struct {
	expr    Expr
	private bool
	result  bool
}

// SlotRef identifies a slot by owning object and key.
type SlotRef struct {
	Obj ObjectID
	Key string
}

// Object is one arena entry.
type Object struct {
	id      ObjectID
	proto   ObjectID // prototype chain link, NoObject at the root
	lexical ObjectID // enclosing object at definition time, NoObject at top level
	kind    ObjectKind
	slots   map[string]*Slot
	order   []string // own-slot declaration order
	params  []string // implicit parameter list, statically discovered
	coll    *collectorState
}

// ID returns the object's arena index.
func (o *Object) ID() ObjectID { return o.id }

// Kind returns the object's kind tag.
func (o *Object) Kind() ObjectKind { return o.kind }

// Prototype returns the prototype reference, NoObject at the chain root.
func (o *Object) Prototype() ObjectID { return o.proto }

// Params returns the implicit parameter list in discovery order.
func (o *Object) Params() []string { return o.params }

// Keys returns the object's own slot keys in declaration order.
func (o *Object) Keys() []string { return o.order }

// arena owns every object. It is the engine's sole shared mutable store:
// distinct objects are written without mutual exclusion, writes to the same
// slot are serialized by the propagator, and this lock only guards the
// entry table itself.
type arena struct {
	mu      sync.RWMutex
	objects []*Object
}

func newArena() *arena {
	return &arena{}
}

func (a *arena) alloc(kind ObjectKind, proto, lexical ObjectID) *Object {
	a.mu.Lock()
	defer a.mu.Unlock()
	obj := &Object{
		id:      ObjectID(len(a.objects)),
		proto:   proto,
		lexical: lexical,
		kind:    kind,
		slots:   make(map[string]*Slot),
	}
	a.objects = append(a.objects, obj)
	return obj
}

// get returns the arena entry for id, or nil for NoObject and reclaimed or
// out-of-range indices.
func (a *arena) get(id ObjectID) *Object {
	if id == NoObject {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(id) >= len(a.objects) {
		return nil
	}
	return a.objects[int(id)]
}

// reclaim drops every object unreachable from the given roots. Cached slot
// values are consulted through committed, since reference values live in the
// propagator's nodes. Objects whose collector carries a durable log are kept
// alive regardless: they are logically permanent while the log exists.
func (a *arena) reclaim(roots []ObjectID, committed func(SlotRef) (Value, bool)) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	live := make(map[ObjectID]bool, len(a.objects))
	stack := append([]ObjectID(nil), roots...)
	for _, obj := range a.objects {
		if obj != nil && obj.coll != nil && obj.coll.log != nil {
			stack = append(stack, obj.id)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == NoObject || live[id] {
			continue
		}
		obj := a.objects[int(id)]
		if obj == nil {
			continue
		}
		live[id] = true
		stack = append(stack, obj.proto, obj.lexical)
		for key, slot := range obj.slots {
			if v, ok := committed(SlotRef{Obj: obj.id, Key: key}); ok && v.IsObject() {
				stack = append(stack, v.Object())
			}
			// References embedded in a not-yet-evaluated expression are
			// reachable too.
			if slot.expr != nil {
				slot.expr.scanRefs(&stack)
			}
		}
		if obj.coll != nil {
			for _, v := range obj.coll.items {
				if v.IsObject() {
					stack = append(stack, v.Object())
				}
			}
		}
	}

	reclaimed := 0
	for i, obj := range a.objects {
		if obj != nil && !live[obj.id] {
			a.objects[i] = nil
			reclaimed++
		}
	}
	return reclaimed
}
