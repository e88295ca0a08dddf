package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// GC: generational mark-and-sweep (§4.2)
// ---------------------------------------------------------------------------

// generation is an intrusive doubly-linked list of every live object
// currently assigned to it (young or old, §3.2's gen_link).
type generation struct {
	head  Obj
	tail  Obj
	count int
	bytes int
}

func (g *generation) link(o Obj) {
	h := o.header()
	h.gen = g
	h.prev = nil
	h.next = g.head
	if g.head != nil {
		g.head.header().prev = o
	}
	g.head = o
	if g.tail == nil {
		g.tail = o
	}
	g.count++
}

func (g *generation) unlink(o Obj) {
	h := o.header()
	if h.prev != nil {
		h.prev.header().next = h.next
	} else {
		g.head = h.next
	}
	if h.next != nil {
		h.next.header().prev = h.prev
	} else {
		g.tail = h.prev
	}
	h.next, h.prev, h.gen = nil, nil, nil
	g.count--
}

// GCConfig tunes collection cadence (§4.2's "configurable, default").
type GCConfig struct {
	YoungThresholdBytes int           // default 1 MiB
	YoungGCCountForFull int           // default 8
	StatsInterval       time.Duration // cadence of the background stats reporter (added, §1/§5 ambient stack)
}

func DefaultGCConfig() GCConfig {
	return GCConfig{
		YoungThresholdBytes: 1 << 20,
		YoungGCCountForFull: 8,
		StatsInterval:       30 * time.Second,
	}
}

// Roots bundles every pointer the collector needs to find reachable
// objects (§4.2 "Roots" list). It is set once, after the owning VM has
// constructed its subsystems.
type Roots struct {
	Fibers   *FiberRegistry
	Globals  *GlobalTable
	Interned *InternTable
	Types    *TypeRegistry
	Pending  *PendingWork
	Members  *memberRegistry
}

// PendingWork models the parser's lazy member-definition caches (§4.2
// roots item 5) as a flat, append-only list of marker callbacks so the
// GC does not need to know the parser's internal shape.
type PendingWork struct {
	mu        sync.Mutex
	callbacks []func(*Collector)
}

func (p *PendingWork) Add(f func(*Collector)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, f)
}

func (p *PendingWork) markRoots(c *Collector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.callbacks {
		f(c)
	}
}

// Stats mirrors the teacher's RegistryGCStats shape: one struct per
// sweep, retained for the most recent cycle only.
type Stats struct {
	Young         bool
	Swept         int
	Promoted      int
	BytesFreed    int
	Duration      time.Duration
	Timestamp     time.Time
	YoungObjects  int
	OldObjects    int
}

// Collector implements the tracing mark-and-sweep collector: two
// generations, a dirty set for the write barrier, and bounded young
// collection cadence.
type Collector struct {
	cfg   GCConfig
	roots *Roots

	young, old generation
	dirty      map[Obj]struct{}

	bytesSinceYoungGC int
	youngGCCount      int

	visited []Obj // scratch list reused by Mark to avoid reallocating per cycle

	sweepCount atomic.Uint64
	lastStats  atomic.Value // *Stats

	mu sync.Mutex // guards allocation/collection; the VM is single-threaded but tests may probe concurrently
}

func NewCollector(cfg GCConfig) *Collector {
	return &Collector{cfg: cfg, dirty: make(map[Obj]struct{})}
}

// SetRoots wires the collector to the owning VM's subsystems. Must be
// called before the first allocation.
func (c *Collector) SetRoots(r *Roots) { c.roots = r }

// ---------------------------------------------------------------------------
// Allocation (§4.2 "Allocation contract")
// ---------------------------------------------------------------------------

// track links a freshly-constructed object into the young generation
// and may trigger a collection before returning, per the allocation
// contract. size is an approximate byte cost used only to pace
// collections, not an exact accounting.
func (c *Collector) track(o Obj, size int) {
	c.mu.Lock()
	c.young.link(o)
	c.young.bytes += size
	c.bytesSinceYoungGC += size
	c.mu.Unlock()

	if c.bytesSinceYoungGC >= c.cfg.YoungThresholdBytes {
		c.Collect(false)
	}
}

func (c *Collector) trackIntern(o *StringObj, size int) { c.track(o, size+16) }
func (c *Collector) trackTypeObj(o *TypeObj)            { c.track(o, 24) }

// Alloc is the generic entry point the object constructors in this
// package funnel through; kept distinct from track so call sites read
// as "allocate a T", matching §4.2's `allocate<T>(init)` contract.
func Alloc[T Obj](c *Collector, o T, size int) T {
	c.track(o, size)
	return o
}

// ---------------------------------------------------------------------------
// Write barrier (§4.2 "Write barrier")
// ---------------------------------------------------------------------------

// markDirty implements the write barrier: called by every mutation that
// stores a reference into an already-tracked field (ObjectInstance
// field assignment, Object static/method assignment, List
// append/set/remove, Map set/remove). Only old-generation objects need
// to be remembered — a young object re-traced by the very next young
// collection needs no special bookkeeping.
func (c *Collector) markDirty(o Obj) {
	h := o.header()
	if h.gen != &c.old {
		return
	}
	if h.dirty {
		return
	}
	h.dirty = true
	c.mu.Lock()
	c.dirty[o] = struct{}{}
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// Collect runs one cycle. full forces a full (young+old) collection
// regardless of the young-collection counter.
func (c *Collector) Collect(full bool) *Stats {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !full {
		c.youngGCCount++
		if c.youngGCCount >= c.cfg.YoungGCCountForFull {
			full = true
			c.youngGCCount = 0
		}
	}

	c.visited = c.visited[:0]
	c.markAllRoots(full)

	stats := &Stats{Young: !full, Timestamp: start}
	// On a full cycle the old generation is swept first: objects the
	// young sweep promotes arrive there with their marks already
	// cleared, and must not be judged unreachable by a later old sweep.
	var oldSwept int
	if full {
		oldSwept, _, _ = c.sweep(&c.old, full)
	}
	stats.Swept, stats.BytesFreed, stats.Promoted = c.sweep(&c.young, full)
	stats.Swept += oldSwept
	if !full {
		c.resetOldMarks()
	}
	stats.Duration = time.Since(start)
	stats.YoungObjects = c.young.count
	stats.OldObjects = c.old.count

	c.bytesSinceYoungGC = 0
	c.sweepCount.Add(1)
	c.lastStats.Store(stats)
	return stats
}

func (c *Collector) markAllRoots(full bool) {
	if c.roots == nil {
		return
	}
	if c.roots.Fibers != nil {
		c.roots.Fibers.markRoots(c)
	}
	if c.roots.Globals != nil {
		c.roots.Globals.markRoots(c)
	}
	if c.roots.Interned != nil {
		c.roots.Interned.markRoots(c)
	}
	if c.roots.Types != nil {
		c.roots.Types.markRoots(c)
	}
	if c.roots.Pending != nil {
		c.roots.Pending.markRoots(c)
	}
	if c.roots.Members != nil {
		c.roots.Members.markRoots(c)
	}
	// For a young cycle only, the dirty old-set is also a root (§4.2
	// roots item 6): an old object that may hold young references must
	// be re-traced even though it wasn't itself reachable from the
	// fiber/global/intern/type roots this cycle (it always is, in
	// practice, since old objects are themselves rooted transitively —
	// but re-tracing from the dirty set directly is what lets a young
	// collection skip walking the rest of the old generation).
	if !full {
		for o := range c.dirty {
			markObj(c, o)
		}
	}
}

// sweep walks gen's list; unmarked objects are deinit'd and unlinked,
// marked objects are cleared (unmarked for the next cycle). Surviving
// young objects are promoted to the old generation on a full
// collection; promoted reports how many.
func (c *Collector) sweep(gen *generation, full bool) (swept int, bytesFreed int, promoted int) {
	var toPromote []Obj
	o := gen.head
	for o != nil {
		next := o.header().next
		h := o.header()
		if !h.marked {
			gen.unlink(o)
			o.deinit()
			swept++
			delete(c.dirty, o)
		} else {
			h.marked = false
			h.dirty = false
			delete(c.dirty, o)
			if full && gen == &c.young {
				toPromote = append(toPromote, o)
			}
		}
		o = next
	}
	for _, o := range toPromote {
		gen.unlink(o)
		c.old.link(o)
	}
	return swept, bytesFreed, len(toPromote)
}

// resetOldMarks clears the mark/dirty bits that old-generation objects
// picked up during a young-only cycle's trace (§8 invariant 1: marked
// must return to false by the end of every cycle, not just a full
// one). A young cycle never sweeps the old generation, so without
// this an old object marked this cycle — whether reached through a
// normal root or re-traced off the dirty set — would stay marked
// forever; the next young cycle's markObj would then short-circuit on
// that stale bit and never re-trace it, silently failing to mark any
// young object it newly references (§8 invariant 2).
func (c *Collector) resetOldMarks() {
	for _, o := range c.visited {
		h := o.header()
		if h.gen != &c.old {
			continue
		}
		h.marked = false
		h.dirty = false
		delete(c.dirty, o)
	}
}

func (c *Collector) LastStats() *Stats {
	v := c.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*Stats)
}

func (c *Collector) SweepCount() uint64 { return c.sweepCount.Load() }

// YoungCount/OldCount expose generation sizes for tests asserting on
// promotion (§8 scenario 4).
func (c *Collector) YoungCount() int { c.mu.Lock(); defer c.mu.Unlock(); return c.young.count }
func (c *Collector) OldCount() int   { c.mu.Lock(); defer c.mu.Unlock(); return c.old.count }

// IsOld/IsYoung/IsDirty are test/introspection helpers.
func (c *Collector) IsOld(o Obj) bool   { return o.header().gen == &c.old }
func (c *Collector) IsYoung(o Obj) bool { return o.header().gen == &c.young }
func (c *Collector) IsDirty(o Obj) bool { return o.header().dirty }
