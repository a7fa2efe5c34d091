package axis

// The expression tree is the engine's input surface. A front end (parser,
// markup generator, whatever) produces these nodes; the engine never sees
// source text.

// Expr is a node of the expression tree attached to a slot.
type Expr interface {
	// scanFree appends free identifiers in textual (pre-order) position,
	// skipping names bound by the given set. Used for static
	// implicit-parameter discovery.
	scanFree(bound map[string]bool, seen map[string]bool, out *[]string)

	// scanRefs appends object references embedded literally in the
	// expression. Reclamation follows them: a reference held by a slot
	// keeps its target alive even before the slot first evaluates.
	scanRefs(out *[]ObjectID)
}

// BinOp enumerates binary operators.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpMin
	OpMax
)

// UnOp enumerates unary operators.
type UnOp uint8

const (
	OpNeg UnOp = iota
	OpNot
)

// Lit is a literal value.
type Lit struct {
	Val Value
}

// Ident references a name resolved against the owning object's slots, then
// the lexical chain of enclosing objects. An identifier that resolves
// nowhere is an implicit parameter and reads Undefined until bound.
type Ident struct {
	Name string
}

// Self references the object whose slot is being evaluated.
type Self struct{}

// Prop is property access on the result of Base.
type Prop struct {
	Base Expr
	Name string
}

// Index is positional access into a collector's folded multiset.
type Index struct {
	Base Expr
	At   Expr
}

// Binary applies a binary operator.
type Binary struct {
	Op BinOp
	L  Expr
	R  Expr
}

// Unary applies a unary operator.
type Unary struct {
	Op UnOp
	X  Expr
}

// Cond is if/then/else over the truthiness of If.
type Cond struct {
	If   Expr
	Then Expr
	Else Expr
}

// SlotDef declares one slot of an object literal or clone override.
type SlotDef struct {
	Name    string
	Private bool
	Result  bool // marks the designated result slot of a function
	Expr    Expr
}

// ObjectLit constructs a fresh object with the given slots. Kind selects
// Plain, Template, or Collector construction; a Template with a Result slot
// evaluates to a function reference.
type ObjectLit struct {
	Slots []SlotDef
	Kind  ObjectKind
}

// CloneExpr constructs a new object whose prototype is the value of Base.
// Named overrides shadow prototype slots; positional Args are mapped through
// the base's implicit parameter list.
type CloneExpr struct {
	Base       Expr
	Named      []SlotDef
	Args       []Expr
	AsTemplate bool
}

// InsertExpr inserts the value of Val into the collector referenced by
// Target. Inserting into a non-collector is a no-op. The expression itself
// evaluates to the inserted value.
type InsertExpr struct {
	Target Expr
	Val    Expr
}

// CallExpr invokes a function reference with positional arguments.
type CallExpr struct {
	Fn   Expr
	Args []Expr
}

func (Lit) scanFree(map[string]bool, map[string]bool, *[]string) {}

func (e Ident) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	if bound[e.Name] || seen[e.Name] {
		return
	}
	seen[e.Name] = true
	*out = append(*out, e.Name)
}

func (Self) scanFree(map[string]bool, map[string]bool, *[]string) {}

func (e Prop) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	e.Base.scanFree(bound, seen, out)
}

func (e Index) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	e.Base.scanFree(bound, seen, out)
	e.At.scanFree(bound, seen, out)
}

func (e Binary) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	e.L.scanFree(bound, seen, out)
	e.R.scanFree(bound, seen, out)
}

func (e Unary) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	e.X.scanFree(bound, seen, out)
}

func (e Cond) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	e.If.scanFree(bound, seen, out)
	e.Then.scanFree(bound, seen, out)
	e.Else.scanFree(bound, seen, out)
}

func (e ObjectLit) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	// A nested object literal binds its own slot names for its body.
	inner := make(map[string]bool, len(bound)+len(e.Slots))
	for k := range bound {
		inner[k] = true
	}
	for _, def := range e.Slots {
		inner[def.Name] = true
	}
	for _, def := range e.Slots {
		if def.Expr != nil {
			def.Expr.scanFree(inner, seen, out)
		}
	}
}

func (e CloneExpr) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	e.Base.scanFree(bound, seen, out)
	for _, def := range e.Named {
		if def.Expr != nil {
			def.Expr.scanFree(bound, seen, out)
		}
	}
	for _, a := range e.Args {
		a.scanFree(bound, seen, out)
	}
}

func (e InsertExpr) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	e.Target.scanFree(bound, seen, out)
	e.Val.scanFree(bound, seen, out)
}

func (e CallExpr) scanFree(bound map[string]bool, seen map[string]bool, out *[]string) {
	e.Fn.scanFree(bound, seen, out)
	for _, a := range e.Args {
		a.scanFree(bound, seen, out)
	}
}

func (e Lit) scanRefs(out *[]ObjectID) {
	if e.Val.IsObject() {
		*out = append(*out, e.Val.Object())
	}
}

func (Ident) scanRefs(*[]ObjectID) {}

func (Self) scanRefs(*[]ObjectID) {}

func (e Prop) scanRefs(out *[]ObjectID) {
	e.Base.scanRefs(out)
}

func (e Index) scanRefs(out *[]ObjectID) {
	e.Base.scanRefs(out)
	e.At.scanRefs(out)
}

func (e Binary) scanRefs(out *[]ObjectID) {
	e.L.scanRefs(out)
	e.R.scanRefs(out)
}

func (e Unary) scanRefs(out *[]ObjectID) {
	e.X.scanRefs(out)
}

func (e Cond) scanRefs(out *[]ObjectID) {
	e.If.scanRefs(out)
	e.Then.scanRefs(out)
	e.Else.scanRefs(out)
}

func (e ObjectLit) scanRefs(out *[]ObjectID) {
	for _, def := range e.Slots {
		if def.Expr != nil {
			def.Expr.scanRefs(out)
		}
	}
}

func (e CloneExpr) scanRefs(out *[]ObjectID) {
	e.Base.scanRefs(out)
	for _, def := range e.Named {
		if def.Expr != nil {
			def.Expr.scanRefs(out)
		}
	}
	for _, a := range e.Args {
		a.scanRefs(out)
	}
}

func (e InsertExpr) scanRefs(out *[]ObjectID) {
	e.Target.scanRefs(out)
	e.Val.scanRefs(out)
}

func (e CallExpr) scanRefs(out *[]ObjectID) {
	e.Fn.scanRefs(out)
	for _, a := range e.Args {
		a.scanRefs(out)
	}
}

// implicitParams performs the static scan deciding a definition block's
// implicit parameter list: free identifiers not bound by any sibling slot,
// ordered by first textual occurrence across the slots in declaration
// order. The scan is static; dynamic evaluation order plays no part.
func implicitParams(slots []SlotDef) []string {
	bound := make(map[string]bool, len(slots))
	for _, def := range slots {
		bound[def.Name] = true
	}
	seen := make(map[string]bool)
	var params []string
	for _, def := range slots {
		if def.Expr != nil {
			def.Expr.scanFree(bound, seen, &params)
		}
	}
	return params
}
