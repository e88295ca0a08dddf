package vm

import "sync"

// ---------------------------------------------------------------------------
// StringObj: immutable, interned strings (§3.3 invariants, §4.5)
// ---------------------------------------------------------------------------

// StringObj is the heap representation of an interned string. Identity
// implies equality: the InternTable holds at most one StringObj per
// byte sequence (§3.3).
type StringObj struct {
	baseObj
	s string
}

func (s *StringObj) objKind() ObjKind { return ObjKindString }
func (s *StringObj) mark(c *Collector) {}
func (s *StringObj) deinit()        {}
func (s *StringObj) String() string { return s.s }

// ---------------------------------------------------------------------------
// InternTable: write-once, O(1) lookup (§5)
// ---------------------------------------------------------------------------

// InternTable is the process-wide table of unique String objects. It is
// write-once per string: once interned, a string is never removed
// (Non-goals, §1), and lookups are O(1).
type InternTable struct {
	mu    sync.RWMutex
	bySrc map[string]*StringObj
}

func newInternTable() *InternTable {
	return &InternTable{bySrc: make(map[string]*StringObj, 256)}
}

// Intern returns the canonical StringObj for s, allocating a new one
// through the collector on first sight.
func (t *InternTable) Intern(c *Collector, s string) *StringObj {
	t.mu.RLock()
	if obj, ok := t.bySrc[s]; ok {
		t.mu.RUnlock()
		return obj
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if obj, ok := t.bySrc[s]; ok {
		return obj
	}
	obj := &StringObj{s: s}
	c.trackIntern(obj, len(s))
	t.bySrc[s] = obj
	return obj
}

// Lookup returns the interned StringObj for s without allocating.
func (t *InternTable) Lookup(s string) (*StringObj, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	obj, ok := t.bySrc[s]
	return obj, ok
}

// Len reports how many distinct strings are interned.
func (t *InternTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bySrc)
}

// markRoots marks every interned string as a GC root (§4.2 roots, item 3).
func (t *InternTable) markRoots(c *Collector) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, obj := range t.bySrc {
		markObj(c, obj)
	}
}

// Concat interns the concatenation of a and b, satisfying the string
// interning round-trip scenario in §8 ("ab"+"c" and "a"+"bc" must yield
// the same object pointer): any two equal byte sequences resolve to the
// same table entry regardless of how they were constructed.
func (t *InternTable) Concat(c *Collector, a, b string) *StringObj {
	return t.Intern(c, a+b)
}
