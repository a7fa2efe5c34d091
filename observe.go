package axis

import "context"

// Observe returns a read-only snapshot of a converged object: every
// externally visible property key mapped to its quiescent value. This is the
// rendering backend's surface: it has no write access and triggers nothing
// beyond bringing the observed slots themselves to quiescence.
//
// Template objects observe as all-Undefined, and private slots are omitted,
// matching what any external reader would see.
func (e *Engine) Observe(ctx context.Context, target Value) (map[string]Value, error) {
	obj := e.arena.get(target.Object())
	if obj == nil {
		return nil, nil
	}

	keys := e.visibleKeys(obj)
	snapshot := make(map[string]Value, len(keys))

	if obj.kind == TemplateKind {
		for _, key := range keys {
			snapshot[key] = Undefined()
		}
		return snapshot, nil
	}

	// Materialize everything first, then stabilize once, then read the
	// committed values so the snapshot belongs to a single revision.
	ec := e.pool.acquireCtx(e, NoObject, SlotRef{})
	for _, key := range keys {
		e.getProperty(ec, obj.id, key)
	}
	e.pool.releaseCtx(ec)

	err := e.prop.stabilize(ctx)

	for _, key := range keys {
		snapshot[key] = e.read(target, key)
	}
	return snapshot, err
}

// visibleKeys collects non-private slot keys over the whole prototype chain,
// own slots first, in declaration order.
func (e *Engine) visibleKeys(obj *Object) []string {
	var keys []string
	seen := make(map[string]bool)
	for obj != nil {
		for _, key := range obj.order {
			if seen[key] || obj.slots[key].private {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
		}
		obj = e.arena.get(obj.proto)
	}
	return keys
}
