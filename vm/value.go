package vm

import "math"

// ---------------------------------------------------------------------------
// Value: the tagged union at the heart of the interpreter
// ---------------------------------------------------------------------------

// ValueKind discriminates the variant carried by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindObj
)

// Value is a compact tagged union carrying booleans, integers, floats,
// null, or a heap pointer to a polymorphic Object (§3.1). Unlike the
// teacher's NaN-boxed encoding, Integer needs the full 64-bit range, so
// we keep a discriminant byte alongside a 64-bit payload instead of
// stealing bits from the float's NaN space.
type Value struct {
	kind ValueKind
	bits uint64 // int64 bit pattern, float64 bit pattern, or bool (0/1)
	obj  Obj
}

// Null is the sole null value.
var Null = Value{kind: KindNull}

// True and False are the two boolean values.
var (
	True  = Value{kind: KindBool, bits: 1}
	False = Value{kind: KindBool, bits: 0}
)

func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

func IntValue(n int64) Value {
	return Value{kind: KindInt, bits: uint64(n)}
}

func FloatValue(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

func ObjValue(o Obj) Value {
	if o == nil {
		return Null
	}
	return Value{kind: KindObj, obj: o}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) IsBool() bool  { return v.kind == KindBool }
func (v Value) IsInt() bool   { return v.kind == KindInt }
func (v Value) IsFloat() bool { return v.kind == KindFloat }
func (v Value) IsObj() bool   { return v.kind == KindObj }

func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.bits != 0
	default:
		return true
	}
}

// AsBool panics if v does not carry a boolean. Callers that have already
// dispatched on Kind() should prefer this over a type assertion.
func (v Value) AsBool() bool {
	if v.kind != KindBool {
		panic("Value.AsBool: not a boolean")
	}
	return v.bits != 0
}

func (v Value) AsInt() int64 {
	if v.kind != KindInt {
		panic("Value.AsInt: not an integer")
	}
	return int64(v.bits)
}

func (v Value) AsFloat() float64 {
	if v.kind != KindFloat {
		panic("Value.AsFloat: not a float")
	}
	return math.Float64frombits(v.bits)
}

func (v Value) AsObj() Obj {
	if v.kind != KindObj {
		panic("Value.AsObj: not an object")
	}
	return v.obj
}

// ObjOrNil returns the held Obj, or nil if v does not carry one. Useful
// for call sites that want to avoid the panic in AsObj.
func (v Value) ObjOrNil() Obj {
	if v.kind != KindObj {
		return nil
	}
	return v.obj
}

// ObjKindOf reports the ObjKind of v's payload, or ObjKindNone if v does
// not carry an object.
func (v Value) ObjKindOf() ObjKind {
	if v.kind != KindObj || v.obj == nil {
		return ObjKindNone
	}
	return v.obj.objKind()
}

// ---------------------------------------------------------------------------
// HashableValue: the projection used as Map keys (§3.1)
// ---------------------------------------------------------------------------

// HashableValue is a Value known to be usable as a map key: no NaN
// floats, no mutable Obj variants. Construction validates the rule;
// hashing and equality follow Eql's rules (strings by identity, numbers
// by bit pattern).
type HashableValue struct {
	v Value
}

// ErrUnhashable is returned by ToHashable when v cannot be used as a key.
type ErrUnhashable struct{ Reason string }

func (e *ErrUnhashable) Error() string { return "unhashable value: " + e.Reason }

// ToHashable validates and wraps v for use as a Map key.
func ToHashable(v Value) (HashableValue, error) {
	switch v.kind {
	case KindFloat:
		f := v.AsFloat()
		if f != f { // NaN
			return HashableValue{}, &ErrUnhashable{Reason: "NaN float"}
		}
	case KindObj:
		switch o := v.obj.(type) {
		case *ListObj, *MapObj, *ObjectInstance, *Fiber:
			_ = o
			return HashableValue{}, &ErrUnhashable{Reason: "mutable object kind"}
		}
	}
	return HashableValue{v: v}, nil
}

func (h HashableValue) Value() Value { return h.v }

// hashKey produces a Go-native comparable key so HashableValue can back a
// Go map directly (the Map object's insertion-ordered table, §4.5, layers
// ordering on top of this).
func (h HashableValue) hashKey() any {
	v := h.v
	switch v.kind {
	case KindNull:
		return struct{}{}
	case KindBool:
		return v.bits != 0
	case KindInt:
		return int64(v.bits)
	case KindFloat:
		return v.bits // bit pattern, not float value
	case KindObj:
		switch o := v.obj.(type) {
		case *StringObj:
			return o // interned: pointer identity implies equality
		case *PatternObj:
			return o.source
		case *TypeObj:
			return o
		case *EnumInstanceObj:
			return [2]any{o.enum, o.caseIndex}
		case *UpValueObj:
			return h2(o)
		default:
			return o
		}
	}
	return nil
}

func h2(u *UpValueObj) any {
	return ToHashableOrPanic(u.Get()).hashKey()
}

func ToHashableOrPanic(v Value) HashableValue {
	h, err := ToHashable(v)
	if err != nil {
		panic(err)
	}
	return h
}

// ---------------------------------------------------------------------------
// eql(a, b): value equality (§4.1)
// ---------------------------------------------------------------------------

// Eql implements the spec's value-equality relation. Strings compare by
// identity (justified by interning), Patterns by source text, TypeDefs
// by (optional, structural) equality, EnumInstance by (enum, case), and
// UpValue by unwrapped value; everything else compares by identity.
func Eql(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.bits == b.bits
	case KindInt:
		return int64(a.bits) == int64(b.bits)
	case KindFloat:
		return a.AsFloat() == b.AsFloat()
	case KindObj:
		return eqlObj(a.obj, b.obj)
	}
	return false
}

func eqlObj(a, b Obj) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	switch av := a.(type) {
	case *StringObj:
		// Interning means pointer identity already covered the equal case
		// above; two distinct String objects with equal bytes would be a
		// bug in the intern table, not a second code path here.
		return false
	case *PatternObj:
		bv, ok := b.(*PatternObj)
		return ok && av.source == bv.source
	case *TypeObj:
		bv, ok := b.(*TypeObj)
		return ok && av.def.Eql(bv.def)
	case *EnumInstanceObj:
		bv, ok := b.(*EnumInstanceObj)
		return ok && av.enum == bv.enum && av.caseIndex == bv.caseIndex
	case *UpValueObj:
		if bv, ok := b.(*UpValueObj); ok {
			return Eql(av.unwrap(), bv.unwrap())
		}
		return Eql(av.unwrap(), ObjValue(b))
	}
	return false
}

// unwrap returns the UpValue's current value, open or closed (§3.3).
func (u *UpValueObj) unwrap() Value { return u.Get() }

// ---------------------------------------------------------------------------
// is(obj, type): runtime type test (§4.1)
// ---------------------------------------------------------------------------

// Is implements the spec's runtime type-test dispatch.
func Is(v Value, t *TypeDef) bool {
	t = t.resolved()
	switch v.kind {
	case KindBool:
		return t.Kind == TypeBool
	case KindInt, KindFloat:
		return t.Kind == TypeNumber
	case KindNull:
		return t.Optional || t.Kind == TypeVoid
	case KindObj:
		return isObj(v.obj, t)
	}
	return false
}

func isObj(o Obj, t *TypeDef) bool {
	switch ov := o.(type) {
	case *StringObj:
		return t.Kind == TypeString
	case *PatternObj:
		return t.Kind == TypePattern
	case *Fiber:
		return t.Kind == TypeFiber
	case *TypeObj:
		return t.Kind == TypeType
	case *ObjectDef:
		return t.Kind == TypeType
	case *EnumDef:
		return t.Kind == TypeType
	case *ObjectInstance:
		if t.Kind != TypeObject {
			return false
		}
		for def := ov.class; def != nil; def = def.Super {
			if typeUnionObjectEql(def, t) {
				return true
			}
		}
		return false
	case *EnumInstanceObj:
		return t.Kind == TypeEnum && ov.enum == t.payloadEnum()
	case *FunctionObj:
		return t.Kind == TypeFunction && ov.signature.Eql(t)
	case *ClosureObj:
		return t.Kind == TypeFunction && ov.fn.signature.Eql(t)
	case *BoundObj:
		return t.Kind == TypeFunction && ov.signature().Eql(t)
	case *ListObj:
		return t.Kind == TypeList && t.payloadItem().Eql(ov.itemType)
	case *MapObj:
		return t.Kind == TypeMap && t.payloadMapKey().Eql(ov.keyType) && t.payloadMapValue().Eql(ov.valueType)
	case *UpValueObj:
		return Is(ov.Get(), t)
	}
	return false
}

func typeUnionObjectEql(def *ObjectDef, t *TypeDef) bool {
	return t.payloadObjectDef() == def
}
