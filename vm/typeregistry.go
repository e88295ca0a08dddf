package vm

import "sync"

// ---------------------------------------------------------------------------
// TypeRegistry: canonicalization (§3.3 invariants, §4.2 roots item 4)
// ---------------------------------------------------------------------------

// TypeRegistry canonicalizes structural TypeDefs (two lookups for an
// equal shape return the same pointer) while keeping Object and Enum
// definitions nominal. It is append-only during compilation and
// read-only thereafter (§5).
type TypeRegistry struct {
	mu sync.Mutex

	bools    *TypeDef
	numbers  *TypeDef
	strings  *TypeDef
	patterns *TypeDef
	types    *TypeDef
	voids    *TypeDef
	userdata *TypeDef

	// Structural pools, keyed by a string shape derived from the
	// payload. Object/Enum are deliberately absent: every object{}/
	// enum{} declaration gets its own TypeDef, never collapsed.
	lists     map[string]*TypeDef
	maps      map[string]*TypeDef
	functions map[string]*TypeDef
	fibers    map[string]*TypeDef

	objects []*ObjectDef
	enums   []*EnumDef
}

func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{
		lists:     make(map[string]*TypeDef),
		maps:      make(map[string]*TypeDef),
		functions: make(map[string]*TypeDef),
		fibers:    make(map[string]*TypeDef),
	}
	r.bools = &TypeDef{Kind: TypeBool}
	r.numbers = &TypeDef{Kind: TypeNumber}
	r.strings = &TypeDef{Kind: TypeString}
	r.patterns = &TypeDef{Kind: TypePattern}
	r.types = &TypeDef{Kind: TypeType}
	r.voids = &TypeDef{Kind: TypeVoid}
	r.userdata = &TypeDef{Kind: TypeUserData}
	return r
}

func (r *TypeRegistry) Bool() *TypeDef     { return r.bools }
func (r *TypeRegistry) Number() *TypeDef   { return r.numbers }
func (r *TypeRegistry) String() *TypeDef   { return r.strings }
func (r *TypeRegistry) Pattern() *TypeDef  { return r.patterns }
func (r *TypeRegistry) TypeType() *TypeDef { return r.types }
func (r *TypeRegistry) Void() *TypeDef     { return r.voids }
func (r *TypeRegistry) UserData() *TypeDef { return r.userdata }

// List returns the canonical TypeDef for [item].
func (r *TypeRegistry) List(item *TypeDef) *TypeDef {
	key := "[" + item.String() + "]"
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.lists[key]; ok {
		return t
	}
	t := &TypeDef{Kind: TypeList, payload: &TypeUnion{List: item}}
	r.lists[key] = t
	return t
}

// Map returns the canonical TypeDef for {key: value}.
func (r *TypeRegistry) Map(key, value *TypeDef) *TypeDef {
	shape := "{" + key.String() + ":" + value.String() + "}"
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.maps[shape]; ok {
		return t
	}
	t := &TypeDef{Kind: TypeMap, payload: &TypeUnion{Map: &MapType{Key: key, Value: value}}}
	r.maps[shape] = t
	return t
}

// Fiber returns the canonical TypeDef for fib<return, yield>.
func (r *TypeRegistry) Fiber(ret, yield *TypeDef) *TypeDef {
	shape := "fib<" + ret.String() + "," + yield.String() + ">"
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.fibers[shape]; ok {
		return t
	}
	t := &TypeDef{Kind: TypeFiber, payload: &TypeUnion{Fiber: &FiberType{Return: ret, Yield: yield}}}
	r.fibers[shape] = t
	return t
}

// Function returns the canonical TypeDef for the given function shape.
// Parameter names take part neither in the cache key (only parameter
// types are) nor in Eql's comparison (§4.1: names ignored).
func (r *TypeRegistry) Function(ft *FunctionType) *TypeDef {
	shape := functionShapeKey(ft)
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.functions[shape]; ok {
		return t
	}
	t := &TypeDef{Kind: TypeFunction, payload: &TypeUnion{Function: ft}}
	r.functions[shape] = t
	return t
}

func functionShapeKey(ft *FunctionType) string {
	s := "fn("
	for _, p := range ft.Params {
		s += p.Type.String() + ","
	}
	s += ")>" + ft.Return.String()
	if ft.Yield != nil {
		s += "|" + ft.Yield.String()
	}
	return s
}

// NewObject registers a brand-new, nominal Object (class) TypeDef. Every
// call allocates a fresh, never-collapsed definition, per the
// invariant in §3.3.
func (r *TypeRegistry) NewObject(def *ObjectDef) *TypeDef {
	r.mu.Lock()
	r.objects = append(r.objects, def)
	r.mu.Unlock()
	t := &TypeDef{Kind: TypeObject, payload: &TypeUnion{ObjectDef: def}}
	def.TypeDef = t
	return t
}

// NewEnum registers a brand-new, nominal Enum TypeDef.
func (r *TypeRegistry) NewEnum(def *EnumDef) *TypeDef {
	r.mu.Lock()
	r.enums = append(r.enums, def)
	r.mu.Unlock()
	t := &TypeDef{Kind: TypeEnum, payload: &TypeUnion{EnumDef: def}}
	def.TypeDef = t
	return t
}

// markRoots marks the canonical map's values (§4.2 roots item 4: "keys
// are derived from the TypeDefs themselves" — so only the values, i.e.
// the TypeDefs, need an explicit mark pass; nothing else references
// them that wouldn't already be reachable).
func (r *TypeRegistry) markRoots(c *Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mark := func(t *TypeDef) {
		if t.cachedObj != nil {
			markObj(c, t.cachedObj)
		}
	}
	for _, t := range r.lists {
		mark(t)
	}
	for _, t := range r.maps {
		mark(t)
	}
	for _, t := range r.functions {
		mark(t)
	}
	for _, t := range r.fibers {
		mark(t)
	}
}
