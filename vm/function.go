package vm

// ---------------------------------------------------------------------------
// FunctionObj: a compiled function's fixed metadata
// ---------------------------------------------------------------------------

// FunctionKind distinguishes the fiber-related function flavors named
// in §4.3 ("function kind Anonymous with a non-void yield_type").
type FunctionKind uint8

const (
	FunctionScript FunctionKind = iota
	FunctionMethod
	FunctionAnonymous
)

// FunctionObj holds the static shape of a function: its chunk, its
// declared signature, and (for fibers) whether it yields.
type FunctionObj struct {
	baseObj
	name      string
	kind      FunctionKind
	chunk     *Chunk
	signature *TypeDef // Function-kind TypeDef: params, return, yield
	upvalues  []upvalueSlot
}

// upvalueSlot describes where a closure should capture an upvalue from:
// either the enclosing frame's local stack (isLocal) or the enclosing
// closure's own upvalue list.
type upvalueSlot struct {
	index   int
	isLocal bool
}

// Chunk exposes the function's compiled bytecode, e.g. for a bytecode
// cache writer that needs to serialize it independently of running it.
func (f *FunctionObj) Chunk() *Chunk { return f.chunk }

func (f *FunctionObj) objKind() ObjKind { return ObjKindFunction }
func (f *FunctionObj) mark(c *Collector) {
	// f.signature is canonical and already rooted through the
	// TypeRegistry (§4.2 roots, item 4); only the chunk's constant pool
	// needs tracing from here.
	for _, v := range f.chunk.Constants {
		markValue(c, v)
	}
}
func (f *FunctionObj) deinit()        {}
func (f *FunctionObj) String() string { return "<fn " + f.name + ">" }

// IsYielding reports whether resuming this function as a fiber's entry
// closure permits the yield opcode (§4.3).
func (f *FunctionObj) IsYielding() bool {
	return f.kind == FunctionAnonymous && f.signature.payload != nil && f.signature.payload.Function != nil &&
		!(f.signature.payload.Function.Yield == nil || f.signature.payload.Function.Yield.Kind == TypeVoid)
}

func (f *FunctionObj) YieldType() *TypeDef {
	if f.signature.payload == nil || f.signature.payload.Function == nil {
		return nil
	}
	return f.signature.payload.Function.Yield
}

func (f *FunctionObj) ReturnType() *TypeDef {
	if f.signature.payload == nil || f.signature.payload.Function == nil {
		return nil
	}
	return f.signature.payload.Function.Return
}

// Params returns the function's declared parameter list, or nil if the
// signature carries none (e.g. a hand-assembled test chunk).
func (f *FunctionObj) Params() []Param {
	if f.signature == nil || f.signature.payload == nil || f.signature.payload.Function == nil {
		return nil
	}
	return f.signature.payload.Function.Params
}

// ---------------------------------------------------------------------------
// ClosureObj: a Function paired with its captured upvalues
// ---------------------------------------------------------------------------

type ClosureObj struct {
	baseObj
	fn       *FunctionObj
	upvalues []*UpValueObj
}

func (c *ClosureObj) objKind() ObjKind { return ObjKindClosure }
func (c *ClosureObj) mark(col *Collector) {
	markObj(col, c.fn)
	for _, u := range c.upvalues {
		markObj(col, u)
	}
}
func (c *ClosureObj) deinit()        {}
func (c *ClosureObj) String() string { return "<closure " + c.fn.name + ">" }
