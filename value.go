package axis

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind discriminates the variants of Value.
type ValueKind uint8

const (
	// UndefinedValue is the result of anything that has no better answer.
	UndefinedValue ValueKind = iota
	// NumberValue is a float64 number.
	NumberValue
	// StringValue is an immutable string.
	StringValue
	// BooleanValue is true or false.
	BooleanValue
	// ObjectValue references an arena object.
	ObjectValue
	// FunctionValue references an arena object that carries a result slot.
	FunctionValue
)

func (k ValueKind) String() string {
	switch k {
	case UndefinedValue:
		return "undefined"
	case NumberValue:
		return "number"
	case StringValue:
		return "string"
	case BooleanValue:
		return "boolean"
	case ObjectValue:
		return "object"
	case FunctionValue:
		return "function"
	default:
		return "invalid"
	}
}

// Value is the tagged dynamic value of the engine. Lookups and operations
// over values are total: anything ill-formed degrades to Undefined instead
// of failing.
type Value struct {
	kind ValueKind
	num  float64
	str  string
	b    bool
	obj  ObjectID
}

// Undefined returns the undefined value.
func Undefined() Value {
	return Value{kind: UndefinedValue}
}

// Number wraps a float64.
func Number(n float64) Value {
	return Value{kind: NumberValue, num: n}
}

// String wraps a string.
func String(s string) Value {
	return Value{kind: StringValue, str: s}
}

// Boolean wraps a bool.
func Boolean(b bool) Value {
	return Value{kind: BooleanValue, b: b}
}

// ObjectRef wraps an arena object reference.
func ObjectRef(id ObjectID) Value {
	if id == NoObject {
		return Undefined()
	}
	return Value{kind: ObjectValue, obj: id}
}

// FunctionRef wraps a reference to a callable object.
func FunctionRef(id ObjectID) Value {
	if id == NoObject {
		return Undefined()
	}
	return Value{kind: FunctionValue, obj: id}
}

// Kind returns the value's variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsUndefined reports whether the value is undefined.
func (v Value) IsUndefined() bool { return v.kind == UndefinedValue }

// IsObject reports whether the value references an object (plain or callable).
func (v Value) IsObject() bool {
	return v.kind == ObjectValue || v.kind == FunctionValue
}

// Num returns the numeric payload, or 0 for non-numbers.
func (v Value) Num() float64 {
	if v.kind != NumberValue {
		return 0
	}
	return v.num
}

// Str returns the string payload, or "" for non-strings.
func (v Value) Str() string {
	if v.kind != StringValue {
		return ""
	}
	return v.str
}

// Bool returns the boolean payload, or false for non-booleans.
func (v Value) Bool() bool {
	return v.kind == BooleanValue && v.b
}

// Object returns the referenced object id, or NoObject.
func (v Value) Object() ObjectID {
	if !v.IsObject() {
		return NoObject
	}
	return v.obj
}

// Truthy reports whether the value counts as true in a condition.
// Undefined is false, numbers are true unless zero, strings unless empty,
// object references are always true.
func (v Value) Truthy() bool {
	switch v.kind {
	case UndefinedValue:
		return false
	case NumberValue:
		return v.num != 0
	case StringValue:
		return v.str != ""
	case BooleanValue:
		return v.b
	default:
		return true
	}
}

// Equal compares two values: structural equality for primitives, arena
// identity for object and function references.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		// An object reference and a function reference to the same arena
		// entry denote the same object.
		if v.IsObject() && o.IsObject() {
			return v.obj == o.obj
		}
		return false
	}
	switch v.kind {
	case UndefinedValue:
		return true
	case NumberValue:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case StringValue:
		return v.str == o.str
	case BooleanValue:
		return v.b == o.b
	default:
		return v.obj == o.obj
	}
}

// String renders the value for diagnostics and the REPL.
func (v Value) String() string {
	switch v.kind {
	case UndefinedValue:
		return "undefined"
	case NumberValue:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case StringValue:
		return strconv.Quote(v.str)
	case BooleanValue:
		return strconv.FormatBool(v.b)
	case FunctionValue:
		return fmt.Sprintf("<function #%d>", v.obj)
	default:
		return fmt.Sprintf("<object #%d>", v.obj)
	}
}

// sortKey produces a canonical ordering key used when a collector's multiset
// is exposed through indexed access. The order is stable across insertion
// orders: kinds first, then payloads.
func (v Value) sortKey() (uint8, float64, string) {
	switch v.kind {
	case NumberValue:
		return 1, v.num, ""
	case StringValue:
		return 2, 0, v.str
	case BooleanValue:
		if v.b {
			return 3, 1, ""
		}
		return 3, 0, ""
	case ObjectValue, FunctionValue:
		return 4, float64(v.obj), ""
	default:
		return 0, 0, ""
	}
}

// lessThan is the canonical total order behind sortKey.
func (v Value) lessThan(o Value) bool {
	ak, an, as := v.sortKey()
	bk, bn, bs := o.sortKey()
	if ak != bk {
		return ak < bk
	}
	if an != bn {
		return an < bn
	}
	return as < bs
}
