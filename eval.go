package axis

import "math"

// The evaluator interprets slot expressions under the dependency tracker.
// Every operation is total: ill-typed operands, missing properties, and
// exhausted prototype chains all produce Undefined.

func (e *Engine) evalExpr(ctx *evalCtx, expr Expr) Value {
	switch n := expr.(type) {
	case *Lit:
		return n.Val

	case *Ident:
		return e.resolveIdent(ctx, n.Name)

	case *Self:
		return ObjectRef(ctx.owner)

	case *Prop:
		base := e.evalExpr(ctx, n.Base)
		if !base.IsObject() {
			return Undefined()
		}
		return e.getProperty(ctx, base.Object(), n.Name)

	case *Index:
		base := e.evalExpr(ctx, n.Base)
		at := e.evalExpr(ctx, n.At)
		return e.indexCollector(ctx, base, at)

	case *Binary:
		return e.evalBinary(ctx, n)

	case *Unary:
		x := e.evalExpr(ctx, n.X)
		return applyUnary(n.Op, x)

	case *Cond:
		if e.evalExpr(ctx, n.If).Truthy() {
			return e.evalExpr(ctx, n.Then)
		}
		return e.evalExpr(ctx, n.Else)

	case *ObjectLit:
		obj := e.construct(n, ctx.owner)
		return objectOrFunctionRef(e, obj)

	case *CloneExpr:
		return e.evalClone(ctx, n)

	case *InsertExpr:
		target := e.evalExpr(ctx, n.Target)
		val := e.evalExpr(ctx, n.Val)
		e.insertValue(ctx, target, val)
		return val

	case *CallExpr:
		return e.evalCall(ctx, n)

	case nil:
		return Undefined()

	default:
		return Undefined()
	}
}

// resolveIdent looks a name up against the owning object's slots (own, then
// prototype chain), then each lexically enclosing object. An identifier that
// resolves nowhere is an unbound implicit parameter and reads Undefined; the
// miss is still recorded against the owner so a later binding re-triggers.
func (e *Engine) resolveIdent(ctx *evalCtx, name string) Value {
	for scope := ctx.owner; scope != NoObject; {
		obj := e.arena.get(scope)
		if obj == nil {
			break
		}
		if slot, _ := e.findSlot(obj, name, scope); slot != nil {
			return ctx.readSlot(SlotRef{Obj: scope, Key: name})
		}
		scope = obj.lexical
	}
	ctx.record(SlotRef{Obj: ctx.owner, Key: name})
	return Undefined()
}

// getProperty walks the prototype chain of id for key, applying the privacy
// rule (requester scope is the evaluation's owner) and the template gate.
func (e *Engine) getProperty(ctx *evalCtx, id ObjectID, key string) Value {
	obj := e.arena.get(id)
	if obj == nil {
		return Undefined()
	}
	if obj.kind == TemplateKind && !e.insideTemplate(ctx.owner, obj) {
		// Inert object read from the outside: no value, no evaluation,
		// no side effects.
		return Undefined()
	}
	slot, _ := e.findSlot(obj, key, ctx.owner)
	if slot == nil {
		ctx.record(SlotRef{Obj: id, Key: key})
		return Undefined()
	}
	return ctx.readSlot(SlotRef{Obj: id, Key: key})
}

func (e *Engine) evalClone(ctx *evalCtx, n *CloneExpr) Value {
	base := e.evalExpr(ctx, n.Base)
	baseObj := e.arena.get(base.Object())
	if baseObj == nil {
		return Undefined()
	}
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		args[i] = e.evalExpr(ctx, a)
	}
	obj := e.cloneWrapped(ctx, baseObj, n.Named, args, n.AsTemplate)
	return objectOrFunctionRef(e, obj)
}

func (e *Engine) evalCall(ctx *evalCtx, n *CallExpr) Value {
	fn := e.evalExpr(ctx, n.Fn)
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		args[i] = e.evalExpr(ctx, a)
	}
	return e.invoke(ctx, fn, args)
}

func (e *Engine) evalBinary(ctx *evalCtx, n *Binary) Value {
	// And/Or short-circuit so untaken branches contribute no edges.
	switch n.Op {
	case OpAnd:
		l := e.evalExpr(ctx, n.L)
		if !l.Truthy() {
			return Boolean(false)
		}
		return Boolean(e.evalExpr(ctx, n.R).Truthy())
	case OpOr:
		l := e.evalExpr(ctx, n.L)
		if l.Truthy() {
			return Boolean(true)
		}
		return Boolean(e.evalExpr(ctx, n.R).Truthy())
	}
	l := e.evalExpr(ctx, n.L)
	r := e.evalExpr(ctx, n.R)
	return applyBinary(n.Op, l, r)
}

// applyBinary is the total binary operator table.
func applyBinary(op BinOp, l, r Value) Value {
	switch op {
	case OpEq:
		return Boolean(l.Equal(r))
	case OpNe:
		return Boolean(!l.Equal(r))

	case OpMin:
		// Undefined is the identity: min over a not-yet-known neighbor
		// degrades to the known side, which is what seeds fixpoint
		// iteration.
		switch {
		case l.IsUndefined():
			return r
		case r.IsUndefined():
			return l
		case l.Kind() == NumberValue && r.Kind() == NumberValue:
			return Number(math.Min(l.Num(), r.Num()))
		}
		return Undefined()
	case OpMax:
		switch {
		case l.IsUndefined():
			return r
		case r.IsUndefined():
			return l
		case l.Kind() == NumberValue && r.Kind() == NumberValue:
			return Number(math.Max(l.Num(), r.Num()))
		}
		return Undefined()
	}

	if l.Kind() == StringValue && r.Kind() == StringValue {
		switch op {
		case OpAdd:
			return String(l.Str() + r.Str())
		case OpLt:
			return Boolean(l.Str() < r.Str())
		case OpLe:
			return Boolean(l.Str() <= r.Str())
		case OpGt:
			return Boolean(l.Str() > r.Str())
		case OpGe:
			return Boolean(l.Str() >= r.Str())
		}
		return Undefined()
	}

	if l.Kind() != NumberValue || r.Kind() != NumberValue {
		return Undefined()
	}
	a, b := l.Num(), r.Num()
	switch op {
	case OpAdd:
		return Number(a + b)
	case OpSub:
		return Number(a - b)
	case OpMul:
		return Number(a * b)
	case OpDiv:
		if b == 0 {
			return Undefined()
		}
		return Number(a / b)
	case OpMod:
		if b == 0 {
			return Undefined()
		}
		return Number(math.Mod(a, b))
	case OpLt:
		return Boolean(a < b)
	case OpLe:
		return Boolean(a <= b)
	case OpGt:
		return Boolean(a > b)
	case OpGe:
		return Boolean(a >= b)
	}
	return Undefined()
}

func applyUnary(op UnOp, x Value) Value {
	switch op {
	case OpNeg:
		if x.Kind() == NumberValue {
			return Number(-x.Num())
		}
		return Undefined()
	case OpNot:
		return Boolean(!x.Truthy())
	}
	return Undefined()
}

// objectOrFunctionRef wraps a fresh object as a value: a template carrying a
// designated result slot is a function.
func objectOrFunctionRef(e *Engine, obj *Object) Value {
	if obj.kind == TemplateKind {
		if _, ok := e.resultSlot(obj); ok {
			return FunctionRef(obj.id)
		}
	}
	return ObjectRef(obj.id)
}
