package vm

import (
	"fmt"

	"github.com/buzz-lang/buzz/pattern"
)

// ---------------------------------------------------------------------------
// PatternObj
// ---------------------------------------------------------------------------

// PatternObj wraps the pattern package's compiled matcher. The byte
// source is kept alongside so it survives round-trips through bytecode
// serialization untouched (§6).
type PatternObj struct {
	baseObj
	source string
	p      *pattern.Pattern
}

func (p *PatternObj) objKind() ObjKind   { return ObjKindPattern }
func (p *PatternObj) mark(c *Collector)  {}
func (p *PatternObj) deinit()            {}
func (p *PatternObj) String() string     { return p.source }

// Match/MatchAll implement §4.5-adjacent container semantics for Pattern.
func (p *PatternObj) Match(subject string) []string       { return p.p.Match(subject) }
func (p *PatternObj) MatchAll(subject string) [][]string { return p.p.MatchAll(subject) }

// ---------------------------------------------------------------------------
// TypeObj: wraps a canonical TypeDef for runtime reflection (ObjKind Type)
// ---------------------------------------------------------------------------

type TypeObj struct {
	baseObj
	def *TypeDef
}

func (t *TypeObj) objKind() ObjKind { return ObjKindType }
func (t *TypeObj) mark(c *Collector) {
	// TypeDefs are rooted through the TypeRegistry (§4.2 roots, item 4);
	// nothing additional to trace here.
}
func (t *TypeObj) deinit()        {}
func (t *TypeObj) String() string { return t.def.String() }

// ---------------------------------------------------------------------------
// UpValueObj: open (stack slot) or closed (inlined) capture (§3.3)
// ---------------------------------------------------------------------------

// UpValueObj references a fiber's stack slot by (fiber, slot) rather
// than a raw pointer: the fiber's stack slice can be reallocated as it
// grows, which would dangle a *Value taken before the grow. Indexing
// through the fiber on every access costs nothing a tracing VM cares
// about and keeps the open→closed transition (§3.3) a plain field flip.
type UpValueObj struct {
	baseObj
	fiber  *Fiber // non-nil while open
	slot   int
	value  Value // valid once closed
	closed bool
}

func newOpenUpValue(f *Fiber, slot int) *UpValueObj {
	return &UpValueObj{fiber: f, slot: slot}
}

// Close transitions the upvalue from open to closed, copying the
// current stack-slot value. The transition is monotonic: once closed,
// an upvalue never reopens.
func (u *UpValueObj) Close() {
	if u.closed {
		return
	}
	u.value = u.fiber.stack[u.slot]
	u.fiber = nil
	u.closed = true
}

func (u *UpValueObj) Get() Value {
	if u.closed {
		return u.value
	}
	return u.fiber.stack[u.slot]
}

func (u *UpValueObj) Set(v Value) {
	if u.closed {
		u.value = v
		return
	}
	u.fiber.stack[u.slot] = v
}

func (u *UpValueObj) objKind() ObjKind { return ObjKindUpValue }
func (u *UpValueObj) mark(c *Collector) {
	if u.closed {
		markValue(c, u.value)
	} else if u.fiber != nil {
		// The slot's value is already kept alive by the fiber's own
		// stack scan; marking the fiber itself is what matters here —
		// it keeps this upvalue's backing storage reachable even if a
		// closure holding it has escaped every other root.
		markObj(c, u.fiber)
	}
}
func (u *UpValueObj) deinit()        {}
func (u *UpValueObj) String() string { return fmt.Sprintf("upvalue(%v)", u.Get()) }

// ---------------------------------------------------------------------------
// NativeObj: a materialized built-in method (§4.7)
// ---------------------------------------------------------------------------

// NativeFn is the signature every built-in member table entry and every
// host-library function shares (§6 host library contract): it returns
// its single result value, or an error that the VM raises in the
// calling fiber.
type NativeFn func(vm *VM, receiver Value, args []Value) (Value, error)

type NativeObj struct {
	baseObj
	name string
	fn   NativeFn
	sig  *TypeDef
}

func (n *NativeObj) objKind() ObjKind  { return ObjKindNative }
func (n *NativeObj) mark(c *Collector) {}
func (n *NativeObj) deinit()           {}
func (n *NativeObj) String() string    { return "<native " + n.name + ">" }

// ---------------------------------------------------------------------------
// UserData: an opaque host-allocated payload (e.g. file handles)
// ---------------------------------------------------------------------------

type UserData struct {
	baseObj
	tag     string
	payload any
	finalize func(any)
}

func (u *UserData) objKind() ObjKind  { return ObjKindUserData }
func (u *UserData) mark(c *Collector) {}
func (u *UserData) deinit() {
	if u.finalize != nil {
		u.finalize(u.payload)
	}
}
func (u *UserData) String() string { return "<userdata " + u.tag + ">" }

// ---------------------------------------------------------------------------
// BoundObj: (receiver, callable) pair produced by method-call resolution
// (§4.6)
// ---------------------------------------------------------------------------

type BoundObj struct {
	baseObj
	receiver Value
	closure  *ClosureObj // nil when native is set
	native   *NativeObj  // nil when closure is set
	home     *ObjectDef  // the class whose method table produced closure, for super dispatch; nil for natives
}

func (b *BoundObj) objKind() ObjKind { return ObjKindBound }
func (b *BoundObj) mark(c *Collector) {
	markValue(c, b.receiver)
	if b.closure != nil {
		markObj(c, b.closure)
	}
	if b.native != nil {
		markObj(c, b.native)
	}
}
func (b *BoundObj) deinit()        {}
func (b *BoundObj) String() string { return "<bound method>" }

func (b *BoundObj) signature() *TypeDef {
	if b.closure != nil {
		return b.closure.fn.signature
	}
	return b.native.sig
}

// CallArgs prepends the receiver to argument slots, per §4.6.
func (b *BoundObj) CallArgs(args []Value) []Value {
	out := make([]Value, 0, len(args)+1)
	out = append(out, b.receiver)
	out = append(out, args...)
	return out
}
