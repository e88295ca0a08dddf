package vm

import "sync"

// ---------------------------------------------------------------------------
// Native method materialization (§4.7)
// ---------------------------------------------------------------------------

// memberCache is the per-kind cache of materialized Native wrappers
// keyed by interned method name. One cache exists per receiver kind
// (String, List, Map, Pattern, Fiber) — not one per object instance —
// so two strings calling `.len()` share the same Native object.
type memberCache struct {
	mu    sync.RWMutex
	byKey map[*StringObj]*NativeObj
}

func newMemberCache() *memberCache {
	return &memberCache{byKey: make(map[*StringObj]*NativeObj)}
}

func (m *memberCache) get(name *StringObj) (*NativeObj, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.byKey[name]
	return n, ok
}

func (m *memberCache) set(name *StringObj, n *NativeObj) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[name] = n
}

func (m *memberCache) mark(c *Collector) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.byKey {
		markObj(c, k)
		markObj(c, v)
	}
}

// MemberTable is a static dispatch table: name -> (native function,
// declared signature), written out as a package-level literal per
// receiver kind; member() allocates (and caches) the Native wrapper at
// runtime.
type MemberTable map[string]MemberEntry

type MemberEntry struct {
	Fn  NativeFn
	Sig *TypeDef // Function-kind TypeDef parsed from the literal signature
}

// memberRegistry holds one MemberTable and one memberCache per ObjKind
// that exposes built-in methods.
type memberRegistry struct {
	tables map[ObjKind]MemberTable
	caches map[ObjKind]*memberCache
}

func newMemberRegistry() *memberRegistry {
	r := &memberRegistry{
		tables: make(map[ObjKind]MemberTable),
		caches: make(map[ObjKind]*memberCache),
	}
	r.tables[ObjKindString] = stringMembers
	r.tables[ObjKindList] = listMembers
	r.tables[ObjKindMap] = mapMembers
	r.tables[ObjKindPattern] = patternMembers
	r.tables[ObjKindFiber] = fiberMembers
	for k := range r.tables {
		r.caches[k] = newMemberCache()
	}
	return r
}

// Member implements member(name): on cache miss, looks up name in the
// kind's static dispatch table and allocates a Native wrapper; on hit,
// returns the cached wrapper. Returns (nil, false) if the kind exposes
// no such built-in.
func (r *memberRegistry) Member(c *Collector, kind ObjKind, name *StringObj) (*NativeObj, bool) {
	cache, ok := r.caches[kind]
	if !ok {
		return nil, false
	}
	if n, ok := cache.get(name); ok {
		return n, true
	}
	table := r.tables[kind]
	entry, ok := table[name.s]
	if !ok {
		return nil, false
	}
	n := Alloc(c, &NativeObj{name: name.s, fn: entry.Fn, sig: entry.Sig}, 32)
	cache.set(name, n)
	return n, true
}

// markRoots marks every materialized Native wrapper so a method that
// was looked up once stays reachable for the cache's lifetime (the
// cache itself, not the call sites, is what keeps it alive — callers
// may have dropped their Bound value already).
func (r *memberRegistry) markRoots(c *Collector) {
	for _, cache := range r.caches {
		cache.mark(c)
	}
}
