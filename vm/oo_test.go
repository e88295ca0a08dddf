package vm

import "testing"

// methodClosure builds a no-argument closure whose body just returns a
// constant string literal — enough to give a method an observable,
// distinguishable identity without needing a receiver-aware body.
func methodClosure(m *VM, result string) *ClosureObj {
	c := NewChunk()
	idx := c.AddConstant(ObjValue(m.InternString(result)))
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(idx), 1)
	c.WriteOp(OpReturn, 1)
	fn := m.NewFunction("m", FunctionScript, c, nil)
	return m.NewClosure(fn, nil)
}

func TestSubtypeDispatchCallsOverride(t *testing.T) {
	m := NewVM(DefaultGCConfig())

	a := m.NewObjectDef("A", nil)
	a.Methods["m"] = &MethodDef{Name: "m", Closure: methodClosure(m, "a")}

	b := m.NewObjectDef("B", a)
	b.Methods["m"] = &MethodDef{Name: "m", Closure: methodClosure(m, "b")}

	instance := m.NewInstance(b)

	mainChunk := NewChunk()
	instIdx := mainChunk.AddConstant(ObjValue(instance))
	nameIdx := mainChunk.AddConstant(ObjValue(m.InternString("m")))
	mainChunk.WriteOp(OpConstant, 1)
	mainChunk.WriteU16(uint16(instIdx), 1)
	mainChunk.WriteOp(OpInvoke, 1)
	mainChunk.WriteU16(uint16(nameIdx), 1)
	mainChunk.Write(0, 1)
	mainChunk.WriteOp(OpReturn, 1)

	mainFn := m.NewFunction("main", FunctionScript, mainChunk, nil)
	result, err := Interpret(m, mainFn)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := result.ObjOrNil().(*StringObj)
	if !ok || s.String() != "b" {
		t.Errorf("a.m() on a B instance = %v, want the overriding B.m's \"b\"", result)
	}
}

func TestLookupMethodWalksSuperChain(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	a := m.NewObjectDef("A", nil)
	inherited := &MethodDef{Name: "greet", Closure: methodClosure(m, "hi")}
	a.Methods["greet"] = inherited
	b := m.NewObjectDef("B", a) // does not override greet

	found, home := b.LookupMethod("greet")
	if found != inherited {
		t.Error("LookupMethod must find a method defined only on the superclass")
	}
	if home != a {
		t.Error("LookupMethod must report the class that actually defines the method")
	}

	if _, home := b.LookupMethod("nope"); home != nil {
		t.Error("LookupMethod must report no home for a method nobody defines")
	}
}

func TestIsSubtypeOf(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	a := m.NewObjectDef("A", nil)
	b := m.NewObjectDef("B", a)
	c := m.NewObjectDef("C", b)
	unrelated := m.NewObjectDef("Unrelated", nil)

	if !c.IsSubtypeOf(a) {
		t.Error("C must be a subtype of its grandparent A")
	}
	if !c.IsSubtypeOf(c) {
		t.Error("a class must be a subtype of itself")
	}
	if c.IsSubtypeOf(unrelated) {
		t.Error("C must not be a subtype of an unrelated class")
	}
}

func TestGetFieldFallsThroughToBoundMethod(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	a := m.NewObjectDef("A", nil)
	a.Methods["greet"] = &MethodDef{Name: "greet", Closure: methodClosure(m, "hi")}
	instance := m.NewInstance(a)

	v, ok := instance.GetField(m.Collector(), m.InternString("greet"))
	if !ok {
		t.Fatal("GetField must fall through to a class method when no field matches")
	}
	bound, ok := v.ObjOrNil().(*BoundObj)
	if !ok {
		t.Fatalf("GetField for a method name must return a BoundObj, got %T", v.ObjOrNil())
	}
	if bound.receiver.ObjOrNil() != instance {
		t.Error("the bound method's receiver must be the instance it was read from")
	}
}

func TestGetFieldMissingReturnsNotFound(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	a := m.NewObjectDef("A", nil)
	instance := m.NewInstance(a)

	if _, ok := instance.GetField(m.Collector(), m.InternString("nope")); ok {
		t.Error("GetField must report not-found for a name that is neither a field nor a method")
	}
}

func TestSetFieldFiresWriteBarrierOnPromotedInstance(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	a := m.NewObjectDef("A", nil)
	instance := m.NewInstance(a)
	m.Globals.Set(m.InternString("kept"), ObjValue(instance))

	m.RunGC(true) // promote
	if !m.Collector().IsOld(instance) {
		t.Fatal("setup: instance should have been promoted")
	}

	instance.SetField(m.Collector(), m.InternString("x"), IntValue(1))
	if !m.Collector().IsDirty(instance) {
		t.Error("SetField on a promoted instance must mark it dirty")
	}
}

// TestInstanceMarkKeepsClassReachable exercises §9's open question:
// nothing roots a class directly, so it survives a collection only
// because ObjectInstance.mark marks its class explicitly.
func TestInstanceMarkKeepsClassReachable(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	class := m.NewObjectDef("A", nil)
	instance := m.NewInstance(class)
	m.Globals.Set(m.InternString("kept"), ObjValue(instance))

	m.RunGC(true)
	if !m.Collector().IsOld(class) {
		t.Error("a class reachable only through a live instance must survive and be promoted, not swept")
	}
}

// TestUnreachableClassIsSwept is the converse: drop the only instance
// and its class must be collected like anything else unreachable,
// proving the instance->class mark is the only thing keeping a class
// alive (not some implicit permanence).
func TestUnreachableClassIsSwept(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	name := m.InternString("kept")
	class := m.NewObjectDef("A", nil)
	instance := m.NewInstance(class)
	m.Globals.Set(name, ObjValue(instance))
	m.RunGC(true) // promote both

	m.Globals.Set(name, Null) // drop the only root
	m.RunGC(true)
	// Only the interned name stays old: the intern table keeps it rooted.
	if m.Collector().OldCount() != 1 {
		t.Errorf("OldCount = %d, want 1 (just the interned name) once the instance (and transitively its class) is unreachable", m.Collector().OldCount())
	}
}
