package axis

import "context"

// Handle provides lifecycle control over one slot of one object: the
// engine's accessor surface for drivers and external inputs.
type Handle struct {
	eng *Engine
	obj ObjectID
	key string
}

// Accessor creates a handle for a slot of the given object value.
func (e *Engine) Accessor(target Value, key string) *Handle {
	return &Handle{eng: e, obj: target.Object(), key: key}
}

// Get materializes the slot's value, stabilizing the graph.
func (h *Handle) Get(ctx context.Context) (Value, error) {
	return h.eng.Get(ctx, ObjectRef(h.obj), h.key)
}

// Peek returns the committed cached value without evaluating anything.
func (h *Handle) Peek() (Value, bool) {
	return h.eng.prop.committed(SlotRef{Obj: h.obj, Key: h.key})
}

// Set overwrites the slot with a literal value and propagates to dependents.
func (h *Handle) Set(ctx context.Context, v Value) error {
	return h.eng.Set(ctx, ObjectRef(h.obj), h.key, v)
}

// Invalidate marks the slot dirty without changing its expression; the next
// stabilization re-evaluates it.
func (h *Handle) Invalidate() {
	h.eng.prop.markDirty(SlotRef{Obj: h.obj, Key: h.key})
}

// Ref returns the slot reference this handle controls.
func (h *Handle) Ref() SlotRef {
	return SlotRef{Obj: h.obj, Key: h.key}
}
