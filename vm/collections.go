package vm

// ---------------------------------------------------------------------------
// ListObj (§4.5)
// ---------------------------------------------------------------------------

type ListObj struct {
	baseObj
	items    []Value
	itemType *TypeDef
}

func NewList(itemType *TypeDef) *ListObj {
	return &ListObj{itemType: itemType}
}

func (l *ListObj) objKind() ObjKind { return ObjKindList }
func (l *ListObj) mark(c *Collector) {
	for _, v := range l.items {
		markValue(c, v)
	}
}
func (l *ListObj) deinit()        {}
func (l *ListObj) String() string { return "<list>" }

func (l *ListObj) Len() int { return len(l.items) }

// Append mutates l in place and fires the write barrier (§4.2).
func (l *ListObj) Append(c *Collector, v Value) {
	l.items = append(l.items, v)
	c.markDirty(l)
}

func (l *ListObj) Get(i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return Null, false
	}
	return l.items[i], true
}

func (l *ListObj) Set(c *Collector, i int, v Value) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items[i] = v
	c.markDirty(l)
	return true
}

// Remove removes and returns the item at i, or (Null, false) if i is
// out of bounds — the "bounds → null" rule in §4.5, distinct from Sub's
// bound-checked error (Remove is forgiving, Sub is not, per spec).
func (l *ListObj) Remove(c *Collector, i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return Null, false
	}
	v := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	c.markDirty(l)
	return v, true
}

// Sub returns a new list covering [start, start+length); length defaults
// to the remainder of the list. An out-of-bound start is an error
// (OutOfBound, §4.5/§7/§8 scenario 5).
func (l *ListObj) Sub(start int, length *int) ([]Value, error) {
	if start < 0 || start > len(l.items) {
		return nil, &RuntimeError{Kind: ErrOutOfBound, Message: "`start` is out of bound"}
	}
	end := len(l.items)
	if length != nil {
		end = start + *length
		if end > len(l.items) {
			end = len(l.items)
		}
	}
	out := make([]Value, end-start)
	copy(out, l.items[start:end])
	return out, nil
}

func (l *ListObj) IndexOf(needle Value) (int, bool) {
	for i, v := range l.items {
		if Eql(v, needle) {
			return i, true
		}
	}
	return 0, false
}

// Next implements the iterator protocol: given the previous index (or
// nil for the first call), returns the next index, or nil at the end.
func (l *ListObj) Next(prev *int) *int {
	var n int
	if prev == nil {
		n = 0
	} else {
		n = *prev + 1
	}
	if n >= len(l.items) {
		return nil
	}
	return &n
}

// ---------------------------------------------------------------------------
// MapObj (§4.5)
// ---------------------------------------------------------------------------

// MapObj is an insertion-ordered map from HashableValue to Value.
// Insertion order backs the foreach opcode's iteration contract.
type MapObj struct {
	baseObj
	keyType   *TypeDef
	valueType *TypeDef
	order     []HashableValue
	values    map[any]Value
	keys      map[any]HashableValue
}

func NewMap(keyType, valueType *TypeDef) *MapObj {
	return &MapObj{
		keyType:   keyType,
		valueType: valueType,
		values:    make(map[any]Value),
		keys:      make(map[any]HashableValue),
	}
}

func (m *MapObj) objKind() ObjKind { return ObjKindMap }
func (m *MapObj) mark(c *Collector) {
	for _, k := range m.order {
		markValue(c, k.Value())
	}
	for _, v := range m.values {
		markValue(c, v)
	}
}
func (m *MapObj) deinit()        {}
func (m *MapObj) String() string { return "<map>" }

func (m *MapObj) Size() int { return len(m.order) }

func (m *MapObj) Get(k HashableValue) (Value, bool) {
	v, ok := m.values[k.hashKey()]
	return v, ok
}

// Set inserts or overwrites k->v, preserving first-insertion order for
// existing keys, and fires the write barrier.
func (m *MapObj) Set(c *Collector, k HashableValue, v Value) {
	hk := k.hashKey()
	if _, exists := m.values[hk]; !exists {
		m.order = append(m.order, k)
		m.keys[hk] = k
	}
	m.values[hk] = v
	c.markDirty(m)
}

func (m *MapObj) Remove(c *Collector, k HashableValue) (Value, bool) {
	hk := k.hashKey()
	v, ok := m.values[hk]
	if !ok {
		return Null, false
	}
	delete(m.values, hk)
	delete(m.keys, hk)
	for i, kk := range m.order {
		if kk.hashKey() == hk {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	c.markDirty(m)
	return v, true
}

func (m *MapObj) Keys() []Value {
	out := make([]Value, len(m.order))
	for i, k := range m.order {
		out[i] = k.Value()
	}
	return out
}

func (m *MapObj) Values() []Value {
	out := make([]Value, len(m.order))
	for i, k := range m.order {
		out[i] = m.values[k.hashKey()]
	}
	return out
}

// RawNext returns the key following prev in insertion order, or nil at
// the end (rawNext(prev?) → K? in §4.5).
func (m *MapObj) RawNext(prev *HashableValue) *Value {
	if len(m.order) == 0 {
		return nil
	}
	if prev == nil {
		v := m.order[0].Value()
		return &v
	}
	prevKey := prev.hashKey()
	for i, k := range m.order {
		if k.hashKey() == prevKey {
			if i+1 < len(m.order) {
				v := m.order[i+1].Value()
				return &v
			}
			return nil
		}
	}
	return nil
}
