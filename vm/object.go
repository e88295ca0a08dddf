package vm

// ---------------------------------------------------------------------------
// Object header (§3.2)
// ---------------------------------------------------------------------------

// ObjKind discriminates the sixteen heap-object variants named in §2.
type ObjKind uint8

const (
	ObjKindNone ObjKind = iota
	ObjKindString
	ObjKindPattern
	ObjKindType
	ObjKindUpValue
	ObjKindClosure
	ObjKindFunction
	ObjKindObjectDef
	ObjKindObjectInstance
	ObjKindList
	ObjKindMap
	ObjKindEnum
	ObjKindEnumInstance
	ObjKindBound
	ObjKindNative
	ObjKindUserData
	ObjKindFiber
)

func (k ObjKind) String() string {
	switch k {
	case ObjKindString:
		return "string"
	case ObjKindPattern:
		return "pattern"
	case ObjKindType:
		return "type"
	case ObjKindUpValue:
		return "upvalue"
	case ObjKindClosure:
		return "closure"
	case ObjKindFunction:
		return "function"
	case ObjKindObjectDef:
		return "object"
	case ObjKindObjectInstance:
		return "instance"
	case ObjKindList:
		return "list"
	case ObjKindMap:
		return "map"
	case ObjKindEnum:
		return "enum"
	case ObjKindEnumInstance:
		return "enum-instance"
	case ObjKindBound:
		return "bound"
	case ObjKindNative:
		return "native"
	case ObjKindUserData:
		return "userdata"
	case ObjKindFiber:
		return "fiber"
	default:
		return "none"
	}
}

// Header is embedded in every heap object. marked is toggled by the
// tracer; dirty is set by write barriers; genLink threads the object
// onto its generation's intrusive list (§3.2).
type Header struct {
	marked bool
	dirty  bool
	gen    *generation // which generation this object currently lives on
	next   Obj         // intrusive doubly-linked list within the generation
	prev   Obj
}

// Obj is implemented by every heap-object variant. Dispatch is a type
// switch on the concrete type rather than a per-instance vtable, per
// §9's branch-prediction guidance.
type Obj interface {
	objKind() ObjKind
	header() *Header
	// mark enumerates this object's referents to the collector. Leaf
	// objects (String, Pattern, UserData, Native) have empty bodies.
	mark(c *Collector)
	// deinit releases any non-GC resources (e.g. UserData finalizers).
	deinit()
	String() string
}

// baseObj factors the header so every concrete Obj can embed it once.
type baseObj struct {
	Header
}

func (b *baseObj) header() *Header { return &b.Header }

// markObj is the entry point the collector calls for every reachable
// reference; it is idempotent (already-marked objects are not
// re-entered), which makes cyclic object graphs (class↔method,
// fiber↔parent) safe to walk depth-first.
func markObj(c *Collector, o Obj) {
	if o == nil {
		return
	}
	h := o.header()
	if h.marked {
		return
	}
	h.marked = true
	c.visited = append(c.visited, o)
	o.mark(c)
}

// markValue marks the Obj payload of v, if any.
func markValue(c *Collector, v Value) {
	if v.kind == KindObj {
		markObj(c, v.obj)
	}
}
