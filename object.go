package axis

// Prototype resolver: construction, cloning, and privacy-aware chain lookup.

// construct allocates an object from a literal. Slot expressions stay
// unevaluated thunks until first read; the implicit parameter list is
// decided here by the static scan.
func (e *Engine) construct(lit *ObjectLit, lexical ObjectID) *Object {
	obj := e.arena.alloc(lit.Kind, NoObject, lexical)
	for _, def := range lit.Slots {
		obj.slots[def.Name] = &Slot{
			expr:    def.Expr,
			private: def.Private,
			result:  def.Result,
		}
		obj.order = append(obj.order, def.Name)
	}
	obj.params = implicitParams(lit.Slots)
	if lit.Kind == CollectorKind {
		attachCollector(obj, nil, nil)
	}
	return obj
}

// clone allocates an object with prototype = base. Named overrides become
// own slots shadowing the prototype's; positional args are mapped through
// the base's implicit parameter list; extras are discarded, missing
// parameters stay unbound. A cloned template becomes plain unless the clone
// asks for a template; cloning a collector yields a fresh empty collector.
func (e *Engine) clone(base *Object, named []SlotDef, args []Value, asTemplate bool) *Object {
	kind := base.kind
	if kind == TemplateKind && !asTemplate {
		kind = PlainKind
	}
	obj := e.arena.alloc(kind, base.id, base.lexical)

	for _, def := range named {
		obj.slots[def.Name] = &Slot{
			expr:    def.Expr,
			private: def.Private,
			result:  def.Result,
		}
		obj.order = append(obj.order, def.Name)
	}
	params := e.paramsOf(base)
	for i, arg := range args {
		if i >= len(params) {
			break
		}
		if _, shadowed := obj.slots[params[i]]; shadowed {
			continue
		}
		obj.slots[params[i]] = &Slot{expr: &Lit{Val: arg}}
		obj.order = append(obj.order, params[i])
	}
	if kind == CollectorKind {
		attachCollector(obj, nil, nil)
	}
	return obj
}

// paramsOf resolves the implicit parameter list through the prototype
// chain: a clone without an own list inherits its base's.
func (e *Engine) paramsOf(obj *Object) []string {
	for obj != nil {
		if len(obj.params) > 0 {
			return obj.params
		}
		obj = e.arena.get(obj.proto)
	}
	return nil
}

// findSlot walks obj and its prototype chain for key. Private slots are
// skipped unless the requester is the object that defined them. The second
// result is the object that owns the matching slot.
func (e *Engine) findSlot(obj *Object, key string, requester ObjectID) (*Slot, *Object) {
	for obj != nil {
		if slot, ok := obj.slots[key]; ok {
			if !slot.private || obj.id == requester {
				return slot, obj
			}
		}
		obj = e.arena.get(obj.proto)
	}
	return nil, nil
}

// resultSlot finds the designated result slot through the prototype chain.
func (e *Engine) resultSlot(obj *Object) (string, bool) {
	for obj != nil {
		for _, key := range obj.order {
			if obj.slots[key].result {
				return key, true
			}
		}
		obj = e.arena.get(obj.proto)
	}
	return "", false
}

// insideTemplate reports whether an evaluation anchored at owner is within
// the template obj's own defining context: the owner is the template itself
// or lexically nested in it. Prototype descent does not count: a clone of
// a template is an outsider to the template's slots it does not shadow.
func (e *Engine) insideTemplate(owner ObjectID, tmpl *Object) bool {
	for owner != NoObject {
		if owner == tmpl.id {
			return true
		}
		o := e.arena.get(owner)
		if o == nil {
			return false
		}
		owner = o.lexical
	}
	return false
}
