package vm

import (
	"sync"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Fiber scheduler (§3.4, §4.3, §5)
// ---------------------------------------------------------------------------

// FiberStatus is the state machine driving resume/yield/cancel.
type FiberStatus uint8

const (
	Instanciated FiberStatus = iota
	Running
	Yielded
	Over
)

func (s FiberStatus) String() string {
	switch s {
	case Instanciated:
		return "instanciated"
	case Running:
		return "running"
	case Yielded:
		return "yielded"
	case Over:
		return "over"
	default:
		return "unknown"
	}
}

// Fiber is a first-class cooperative coroutine: its own stack, call
// frames, and status. Implemented as a re-entrant ip/frames/stack
// triple per §9's coroutine guidance, rather than a stackful goroutine
// — exactly one fiber is ever "running" at a time, so a single
// execution stream suffices.
type Fiber struct {
	baseObj

	id uuid.UUID // debug-visible identity (added, ambient stack)

	parent *Fiber
	entry  *ClosureObj

	stack        []Value
	stackTop     int
	frames       []CallFrame
	openUpvalues []*UpValueObj // sorted by stack depth, shallowest first

	status FiberStatus

	returnSlot Value
	yieldValue Value

	lastError *RuntimeError
}

// NewFiberObj instanciates (but does not start) a fiber whose entry
// point is the given closure.
func NewFiberObj(entry *ClosureObj) *Fiber {
	return &Fiber{
		id:     uuid.New(),
		entry:  entry,
		status: Instanciated,
		stack:  make([]Value, 0, 64),
	}
}

func (f *Fiber) objKind() ObjKind { return ObjKindFiber }
func (f *Fiber) mark(c *Collector) {
	if f.parent != nil {
		markObj(c, f.parent)
	}
	if f.entry != nil {
		markObj(c, f.entry)
	}
	for i := 0; i < f.stackTop; i++ {
		markValue(c, f.stack[i])
	}
	for _, fr := range f.frames {
		markObj(c, fr.Closure)
	}
	for _, u := range f.openUpvalues {
		markObj(c, u)
	}
	markValue(c, f.returnSlot)
	markValue(c, f.yieldValue)
}
func (f *Fiber) deinit()        {}
func (f *Fiber) String() string { return "<fiber " + f.id.String() + ">" }

func (f *Fiber) Status() FiberStatus { return f.status }
func (f *Fiber) ID() uuid.UUID       { return f.id }

// IsOver reports whether this fiber's status is Over (member `over()`).
func (f *Fiber) IsOver() bool { return f.status == Over }

// Cancel flips status to Over and drops the pending frames at once,
// without running any catch clause (§4.3 member `cancel()`, §5
// cancellation semantics — cooperative, no finalizer chain).
func (f *Fiber) Cancel() {
	f.status = Over
	f.frames = nil
}

func (f *Fiber) push(v Value) {
	if f.stackTop < len(f.stack) {
		f.stack[f.stackTop] = v
	} else {
		f.stack = append(f.stack, v)
	}
	f.stackTop++
}

func (f *Fiber) pop() Value {
	f.stackTop--
	return f.stack[f.stackTop]
}

// peek returns the value `offset` slots below the stack top without
// popping it (0 is the top-most value).
func (f *Fiber) peek(offset int) Value { return f.stack[f.stackTop-1-offset] }

// popN pops and returns the top n values in push order (oldest first).
func (f *Fiber) popN(n int) []Value {
	f.stackTop -= n
	out := make([]Value, n)
	copy(out, f.stack[f.stackTop:f.stackTop+n])
	return out
}

// captureUpvalue returns the open upvalue already referencing absolute
// stack slot `slot`, or allocates a new one. openUpvalues stays sorted
// by slot depth (§3.4: "sorted list by stack depth"); closeUpvaluesFrom
// still scans the whole list.
func (f *Fiber) captureUpvalue(vm *VM, slot int) *UpValueObj {
	for _, u := range f.openUpvalues {
		if !u.closed && u.slot == slot {
			return u
		}
	}
	created := vm.NewOpenUpValue(f, slot)
	f.openUpvalues = append(f.openUpvalues, created)
	for i := len(f.openUpvalues) - 1; i > 0 && f.openUpvalues[i-1].slot > f.openUpvalues[i].slot; i-- {
		f.openUpvalues[i-1], f.openUpvalues[i] = f.openUpvalues[i], f.openUpvalues[i-1]
	}
	return created
}

// closeUpvaluesFrom closes (and drops from the open list) every open
// upvalue whose slot is >= from, called when a frame returns or a
// block scope exits (§3.3: "closure monotonically transitions
// open→closed").
func (f *Fiber) closeUpvaluesFrom(from int) {
	kept := f.openUpvalues[:0]
	for _, u := range f.openUpvalues {
		if !u.closed && u.slot >= from {
			u.Close()
		} else {
			kept = append(kept, u)
		}
	}
	f.openUpvalues = kept
}

// ---------------------------------------------------------------------------
// CallFrame
// ---------------------------------------------------------------------------

type CallFrame struct {
	Closure    *ClosureObj
	IP         int // instruction pointer; not itself a GC root (§4.2)
	BasePtr    int // first stack slot belonging to this frame
	ReturnBase int // stack slot to truncate to (then push the result) on OpReturn
	CatchIP    int // -1 when no catch clause is installed for this frame
	HasCatch   bool
	HomeClass  *ObjectDef // the class that defined this frame's method, for super dispatch; nil for plain calls
}

// ---------------------------------------------------------------------------
// Scheduler operations (§4.3)
// ---------------------------------------------------------------------------

// ErrFiberOver is returned by Resume when the fiber has already finished,
// and also when it is currently Running.
type ErrFiberOver struct{}

func (ErrFiberOver) Error() string { return "cannot resume a fiber that is over" }

// ErrYieldFromRoot is returned by Yield when called outside any fiber
// (§4.3: "Not legal from the root fiber").
type ErrYieldFromRoot struct{}

func (ErrYieldFromRoot) Error() string { return "cannot yield from the root fiber" }

// ErrNotYielding is returned by Yield when the current fiber's entry
// closure does not admit yielding (§4.3).
type ErrNotYielding struct{}

func (ErrNotYielding) Error() string { return "fiber's entry function is not a yielding function" }

// Resume implements §4.3's resume(f, args). On success it returns the
// fiber that should now run (f itself, linked to the caller as parent).
func Resume(caller, f *Fiber, args []Value) (*Fiber, error) {
	switch f.status {
	case Instanciated:
		f.parent = caller
		f.status = Running
		for _, a := range args {
			f.push(a)
		}
		f.frames = []CallFrame{{Closure: f.entry, BasePtr: 0, CatchIP: -1}}
		return f, nil
	case Yielded:
		f.parent = caller
		f.status = Running
		if len(args) > 0 {
			f.yieldValue = args[0]
		} else {
			f.yieldValue = Null
		}
		return f, nil
	case Over:
		return nil, ErrFiberOver{}
	default: // Running
		return nil, ErrFiberOver{}
	}
}

// Yield implements §4.3's yield(v): only legal inside a yielding
// fiber other than the root. It stores v in the current fiber's own
// yield slot — the same fiber Resume hands back as the one to run
// next, so doResume reads the value back off of it once it stops
// running — marks the current fiber Yielded, and returns the parent
// so the caller can transfer control.
func Yield(current *Fiber, v Value) (*Fiber, error) {
	if current.parent == nil {
		return nil, ErrYieldFromRoot{}
	}
	if current.entry == nil || !current.entry.fn.IsYielding() {
		return nil, ErrNotYielding{}
	}
	current.yieldValue = v
	current.status = Yielded
	parent := current.parent
	return parent, nil
}

// ---------------------------------------------------------------------------
// FiberRegistry: GC root source (§4.2 roots item 1)
// ---------------------------------------------------------------------------

// FiberRegistry tracks every fiber chain reachable from an active
// execution so the collector can walk "the active fiber chain (via
// parent pointers)" for each live chain.
type FiberRegistry struct {
	mu     sync.Mutex
	active []*Fiber // the currently-running leaf of each independent chain
}

func NewFiberRegistry() *FiberRegistry { return &FiberRegistry{} }

func (r *FiberRegistry) SetActive(f *Fiber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.active {
		if existing == f {
			return
		}
	}
	r.active = append(r.active, f)
}

func (r *FiberRegistry) markRoots(c *Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.active {
		for cur := f; cur != nil; cur = cur.parent {
			markObj(c, cur)
		}
	}
}
