package axis

// The template gate. A Template object is inert: reading any of its
// properties from outside its own defining evaluation yields Undefined
// without evaluating anything, so no insertion or clone side effect in its
// body can execute (the gate itself lives in getProperty and Observe).
// Cloning a template produces an active Plain object unless the clone asks
// to stay a template.
//
// A Function is a template with a designated result slot. Invocation clones
// the function with positional arguments bound through its implicit
// parameter list and forces exactly the result slot; the transitive closure
// of what the result reads is pulled in by ordinary demand evaluation.

// invoke calls a function value. Anything that is not a reference to an
// object with a result slot degrades to Undefined. Invocation depth is
// bounded; exceeding the bound records a resource fault instead of hanging.
func (e *Engine) invoke(ctx *evalCtx, fn Value, args []Value) Value {
	obj := e.arena.get(fn.Object())
	if obj == nil {
		return Undefined()
	}
	key, ok := e.resultSlot(obj)
	if !ok {
		return Undefined()
	}
	if ctx.depth >= e.cfg.callDepth {
		e.recordFault(&ResourceLimitError{Resource: "call depth", Obj: obj.id, Limit: e.cfg.callDepth})
		return Undefined()
	}

	frame := e.clone(obj, nil, args, false)
	ctx.depth++
	v := ctx.readSlot(SlotRef{Obj: frame.id, Key: key})
	ctx.depth--
	return v
}

// cloneWrapped runs a clone through the extension chain.
func (e *Engine) cloneWrapped(ctx *evalCtx, base *Object, named []SlotDef, args []Value, asTemplate bool) *Object {
	op := &Operation{Kind: OpClone, Obj: base.id, Engine: e}
	var out *Object
	e.wrapOp(op, func() Value {
		out = e.clone(base, named, args, asTemplate)
		return ObjectRef(out.id)
	})
	return out
}
