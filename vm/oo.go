package vm

// ---------------------------------------------------------------------------
// ObjectDef: a Buzz `object` declaration — the class (§3.3, §4.6)
// ---------------------------------------------------------------------------

type FieldDef struct {
	Name    string
	Type    *TypeDef
	Default *Value
}

type MethodDef struct {
	Name    string
	Closure *ClosureObj
}

// ObjectDef is the heap representation of a class: field layout, method
// table, and the superclass pointer walked by instance-of checks and
// field/method lookup (§4.6).
type ObjectDef struct {
	baseObj
	Name       string
	Super      *ObjectDef
	TypeDef    *TypeDef // the nominal TypeDef this definition was registered under
	Fields     []FieldDef
	Methods    map[string]*MethodDef
	StaticVals map[string]Value
}

func NewObjectDef(name string, super *ObjectDef) *ObjectDef {
	return &ObjectDef{
		Name:       name,
		Super:      super,
		Methods:    make(map[string]*MethodDef),
		StaticVals: make(map[string]Value),
	}
}

func (d *ObjectDef) objKind() ObjKind { return ObjKindObjectDef }
func (d *ObjectDef) mark(c *Collector) {
	if d.Super != nil {
		markObj(c, d.Super)
	}
	for _, m := range d.Methods {
		markObj(c, m.Closure)
	}
	for _, v := range d.StaticVals {
		markValue(c, v)
	}
	for _, f := range d.Fields {
		if f.Default != nil {
			markValue(c, *f.Default)
		}
	}
}
func (d *ObjectDef) deinit()        {}
func (d *ObjectDef) String() string { return "object " + d.Name }

// LookupMethod walks the super chain looking up the named method
// (§4.6: "instance-fields → class-methods → super-chain").
func (d *ObjectDef) LookupMethod(name string) (*MethodDef, *ObjectDef) {
	for cur := d; cur != nil; cur = cur.Super {
		if m, ok := cur.Methods[name]; ok {
			return m, cur
		}
	}
	return nil, nil
}

// IsSubtypeOf walks the super chain; the chain is required to be
// acyclic (§3.3 invariants).
func (d *ObjectDef) IsSubtypeOf(other *ObjectDef) bool {
	for cur := d; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// ObjectInstance (§4.6)
// ---------------------------------------------------------------------------

// ObjectInstance holds the live field values for one instance. Fields
// are keyed by interned String pointers (§3.5), since field names are
// always literal identifiers the parser has already interned.
type ObjectInstance struct {
	baseObj
	class  *ObjectDef
	fields map[*StringObj]Value
}

func NewInstance(class *ObjectDef) *ObjectInstance {
	return &ObjectInstance{class: class, fields: make(map[*StringObj]Value)}
}

func (o *ObjectInstance) objKind() ObjKind { return ObjKindObjectInstance }
func (o *ObjectInstance) mark(c *Collector) {
	// §9 Open Question: an instance must keep its class reachable so a
	// class is never swept while live instances remain, even though
	// nothing else roots it. Marking the class from every instance is
	// the invariant's enforcement point.
	markObj(c, o.class)
	for k, v := range o.fields {
		markObj(c, k)
		markValue(c, v)
	}
}
func (o *ObjectInstance) deinit()        {}
func (o *ObjectInstance) String() string { return "<" + o.class.Name + " instance>" }

// GetField reads a field, falling through to class methods (as a Bound
// value) and then the super chain, per §4.6's search order.
func (o *ObjectInstance) GetField(c *Collector, name *StringObj) (Value, bool) {
	if v, ok := o.fields[name]; ok {
		return v, true
	}
	if m, home := o.class.LookupMethod(name.s); m != nil {
		return ObjValue(Alloc(c, &BoundObj{receiver: ObjValue(o), closure: m.Closure, home: home}, 32)), true
	}
	return Null, false
}

// SetField always targets the instance directly and fires the dirty
// barrier (§4.6: "Field writes always target the instance").
func (o *ObjectInstance) SetField(c *Collector, name *StringObj, v Value) {
	o.fields[name] = v
	c.markDirty(o)
}

// ---------------------------------------------------------------------------
// EnumDef / EnumInstanceObj
// ---------------------------------------------------------------------------

type EnumDef struct {
	baseObj
	Name     string
	TypeDef  *TypeDef // the nominal TypeDef this definition was registered under
	CaseType *TypeDef
	Cases    []string
	Values   []Value // parallel to Cases; may be untyped (index-only) enums
}

func (d *EnumDef) objKind() ObjKind { return ObjKindEnum }
func (d *EnumDef) mark(c *Collector) {
	for _, v := range d.Values {
		markValue(c, v)
	}
}
func (d *EnumDef) deinit()        {}
func (d *EnumDef) String() string { return "enum " + d.Name }

func (d *EnumDef) CaseIndex(name string) (int, bool) {
	for i, c := range d.Cases {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// EnumInstanceObj is one case of an enum, identified by (enum, index) —
// §4.1's equality rule for EnumInstance.
type EnumInstanceObj struct {
	baseObj
	enum      *EnumDef
	caseIndex int
}

func (e *EnumInstanceObj) objKind() ObjKind { return ObjKindEnumInstance }
func (e *EnumInstanceObj) mark(c *Collector) {
	markObj(c, e.enum)
}
func (e *EnumInstanceObj) deinit() {}
func (e *EnumInstanceObj) String() string {
	return e.enum.Name + "." + e.enum.Cases[e.caseIndex]
}

func (e *EnumInstanceObj) Value() Value {
	if e.caseIndex < len(e.enum.Values) {
		return e.enum.Values[e.caseIndex]
	}
	return Null
}
