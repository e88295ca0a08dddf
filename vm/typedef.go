package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// TypeKind (§3.3)
// ---------------------------------------------------------------------------

type TypeKind uint8

const (
	TypeBool TypeKind = iota
	TypeNumber
	TypeString
	TypePattern
	TypeType
	TypeVoid
	TypeUserData
	TypeFiber
	TypeObjectInstance
	TypeEnumInstance
	TypeObject
	TypeEnum
	TypeList
	TypeMap
	TypeFunction
	TypePlaceholder
)

func (k TypeKind) String() string {
	names := [...]string{"bool", "number", "string", "pattern", "type", "void",
		"userdata", "fiber", "object-instance", "enum-instance", "object",
		"enum", "list", "map", "function", "placeholder"}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// TypeUnion: kind-specific payload (§3.3)
// ---------------------------------------------------------------------------

// TypeUnion carries exactly the payload its owning TypeDef.Kind needs.
// Only the field matching Kind is ever populated.
type TypeUnion struct {
	Function    *FunctionType    // Kind == TypeFunction
	Map         *MapType         // Kind == TypeMap
	List        *TypeDef         // Kind == TypeList (item type)
	Fiber       *FiberType       // Kind == TypeFiber
	Placeholder *PlaceholderDef  // Kind == TypePlaceholder
	ObjectDef   *ObjectDef       // Kind == TypeObject
	EnumDef     *EnumDef         // Kind == TypeEnum
}

// FunctionType describes a Function TypeDef's shape: parameters ordered
// by insertion with optional defaults, a return type, and (for fibers)
// a yield type.
type FunctionType struct {
	Name       string
	Params     []Param
	Return     *TypeDef
	Yield      *TypeDef // nil or TypeVoid when not a yielding function
}

type Param struct {
	Name    string
	Type    *TypeDef
	Default *Value // nil when the parameter has no default
}

type MapType struct {
	Key   *TypeDef
	Value *TypeDef
}

type FiberType struct {
	Return *TypeDef
	Yield  *TypeDef
}

// ---------------------------------------------------------------------------
// TypeDef (§3.3)
// ---------------------------------------------------------------------------

// TypeDef describes a static type. Object and Enum definitions are
// nominal (never collapsed by canonicalization); everything else is
// structurally hash-consed by the TypeRegistry.
type TypeDef struct {
	Optional bool
	Kind     TypeKind
	payload  *TypeUnion

	// placeholder is non-nil exactly when Kind == TypePlaceholder; kept
	// as a typed accessor (Placeholder()) alongside payload.Placeholder
	// so resolved() has a cheap, allocation-free fast path.
	placeholder *PlaceholderDef

	// substituted points at the TypeDef this placeholder was resolved
	// into; resolved() follows this chain so every holder of the
	// original placeholder pointer observes the resolution (§4.4).
	substituted *TypeDef

	cachedObj *TypeObj // memoized wrapper for ObjValue(TypeObj{def: this})
}

// resolved follows the substitution chain left behind by placeholder
// resolution; for a non-placeholder TypeDef it is the identity.
func (t *TypeDef) resolved() *TypeDef {
	for t.substituted != nil {
		t = t.substituted
	}
	return t
}

func (t *TypeDef) Placeholder() *PlaceholderDef {
	if t.Kind != TypePlaceholder {
		return nil
	}
	return t.placeholder
}

func (t *TypeDef) payloadItem() *TypeDef {
	r := t.resolved()
	if r.payload == nil {
		return nil
	}
	return r.payload.List
}

func (t *TypeDef) payloadMapKey() *TypeDef {
	r := t.resolved()
	if r.payload == nil || r.payload.Map == nil {
		return nil
	}
	return r.payload.Map.Key
}

func (t *TypeDef) payloadMapValue() *TypeDef {
	r := t.resolved()
	if r.payload == nil || r.payload.Map == nil {
		return nil
	}
	return r.payload.Map.Value
}

func (t *TypeDef) payloadEnum() *EnumDef {
	r := t.resolved()
	if r.payload == nil {
		return nil
	}
	return r.payload.EnumDef
}

func (t *TypeDef) payloadObjectDef() *ObjectDef {
	r := t.resolved()
	if r.payload == nil {
		return nil
	}
	return r.payload.ObjectDef
}

// cloneOptional returns a TypeDef identical to t but with Optional set,
// used when resolving an Optional placeholder relation (§4.4).
func (t *TypeDef) cloneOptional() *TypeDef {
	clone := *t
	clone.Optional = true
	clone.cachedObj = nil
	return &clone
}

func (t *TypeDef) String() string {
	r := t.resolved()
	suffix := ""
	if r.Optional {
		suffix = "?"
	}
	switch r.Kind {
	case TypeObject:
		if r.payload != nil && r.payload.ObjectDef != nil {
			return r.payload.ObjectDef.Name + suffix
		}
	case TypeEnum:
		if r.payload != nil && r.payload.EnumDef != nil {
			return r.payload.EnumDef.Name + suffix
		}
	case TypeList:
		return "[" + r.payloadItem().String() + "]" + suffix
	case TypeMap:
		return "{" + r.payloadMapKey().String() + ":" + r.payloadMapValue().String() + "}" + suffix
	case TypeFunction:
		if r.payload != nil && r.payload.Function != nil {
			parts := make([]string, len(r.payload.Function.Params))
			for i, p := range r.payload.Function.Params {
				parts[i] = p.Type.String()
			}
			return fmt.Sprintf("Function(%s)%s", strings.Join(parts, ", "), suffix)
		}
	case TypePlaceholder:
		if r.placeholder != nil && r.placeholder.Name != nil {
			return "<placeholder " + *r.placeholder.Name + ">" + suffix
		}
		return "<placeholder>" + suffix
	}
	return r.Kind.String() + suffix
}

// obj lazily materializes the TypeObj wrapper used when a type value is
// pushed onto the stack (e.g. `typeof x`).
func (t *TypeDef) obj(c *Collector) *TypeObj {
	if t.cachedObj == nil {
		t.cachedObj = &TypeObj{def: t}
		c.trackTypeObj(t.cachedObj)
	}
	return t.cachedObj
}

// ---------------------------------------------------------------------------
// TypeDef.eql (§4.1)
// ---------------------------------------------------------------------------

// Eql implements the spec's type-equality relation, including the
// Void/optional-normalization and Placeholder concessions.
func (a *TypeDef) Eql(b *TypeDef) bool {
	a = a.resolved()
	b = b.resolved()
	if a == b {
		return true
	}

	// Void is equal to any optional type (return-type normalization).
	if a.Kind == TypeVoid && b.Optional {
		return true
	}
	if b.Kind == TypeVoid && a.Optional {
		return true
	}

	// Placeholder is loosely equal to anything (deferred resolution).
	if a.Kind == TypePlaceholder || b.Kind == TypePlaceholder {
		return true
	}

	if a.Kind != b.Kind {
		return false
	}
	if a.Optional != b.Optional {
		return false
	}

	switch a.Kind {
	case TypeObject:
		// Nominal: never equal to a distinct definition.
		return a.payload != nil && b.payload != nil && a.payload.ObjectDef == b.payload.ObjectDef
	case TypeEnum:
		return a.payload != nil && b.payload != nil && a.payload.EnumDef == b.payload.EnumDef
	case TypeList:
		return a.payloadItem().Eql(b.payloadItem())
	case TypeMap:
		return a.payloadMapKey().Eql(b.payloadMapKey()) && a.payloadMapValue().Eql(b.payloadMapValue())
	case TypeFiber:
		return a.payload.Fiber.Return.Eql(b.payload.Fiber.Return) && a.payload.Fiber.Yield.Eql(b.payload.Fiber.Yield)
	case TypeFunction:
		return functionTypesEql(a.payload.Function, b.payload.Function)
	default:
		if a.payload == nil && b.payload == nil {
			return true
		}
	}
	return a.payload == nil && b.payload == nil
}

// functionTypesEql compares return, yield, parameter count, and
// positional parameter types; names are ignored (§4.1).
func functionTypesEql(a, b *FunctionType) bool {
	if !a.Return.Eql(b.Return) {
		return false
	}
	ay, by := a.Yield, b.Yield
	if (ay == nil) != (by == nil) {
		if ay == nil || ay.Kind != TypeVoid {
			if by == nil || by.Kind != TypeVoid {
				return false
			}
		}
	} else if ay != nil && by != nil && !ay.Eql(by) {
		return false
	}
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !a.Params[i].Type.Eql(b.Params[i].Type) {
			return false
		}
	}
	return true
}
