package vm

import (
	"encoding/binary"
	"testing"
)

// ---------------------------------------------------------------------------
// Hand-assembled bytecode fixtures exercising the dispatch loop end to
// end, grounded on the teacher's interpreter_test.go style: build a
// Chunk with a ChunkBuilder-equivalent sequence of Write/WriteU16 calls,
// wrap it in a FunctionObj, and Interpret it.
// ---------------------------------------------------------------------------

func patchU16(c *Chunk, at int, v uint16) {
	binary.LittleEndian.PutUint16(c.Code[at:], v)
}

func TestInterpretReturnLiteral(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	c := NewChunk()
	idx := c.AddConstant(IntValue(42))
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(idx), 1)
	c.WriteOp(OpReturn, 1)

	fn := m.NewFunction("main", FunctionScript, c, nil)
	result, err := Interpret(m, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsInt() || result.AsInt() != 42 {
		t.Errorf("result = %v, want Int(42)", result)
	}
}

func TestInterpretArithmetic(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	c := NewChunk()
	two := c.AddConstant(IntValue(2))
	three := c.AddConstant(IntValue(3))
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(two), 1)
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(three), 1)
	c.WriteOp(OpAdd, 1)
	c.WriteOp(OpReturn, 1)

	fn := m.NewFunction("main", FunctionScript, c, nil)
	result, err := Interpret(m, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsInt() || result.AsInt() != 5 {
		t.Errorf("result = %v, want Int(5)", result)
	}
}

func TestInterpretGlobalRoundTrip(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	c := NewChunk()
	name := c.AddConstant(ObjValue(m.InternString("answer")))
	val := c.AddConstant(IntValue(7))
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(val), 1)
	c.WriteOp(OpDefineGlobal, 1)
	c.WriteU16(uint16(name), 1)
	c.WriteOp(OpGetGlobal, 1)
	c.WriteU16(uint16(name), 1)
	c.WriteOp(OpReturn, 1)

	fn := m.NewFunction("main", FunctionScript, c, nil)
	result, err := Interpret(m, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsInt() || result.AsInt() != 7 {
		t.Errorf("result = %v, want Int(7)", result)
	}
}

func TestInterpretUndefinedGlobalRaises(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	c := NewChunk()
	name := c.AddConstant(ObjValue(m.InternString("nope")))
	c.WriteOp(OpGetGlobal, 1)
	c.WriteU16(uint16(name), 1)
	c.WriteOp(OpReturn, 1)

	fn := m.NewFunction("main", FunctionScript, c, nil)
	_, err := Interpret(m, fn)
	re, ok := err.(*RuntimeError)
	if !ok || re.Kind != ErrUnexpectedNull {
		t.Fatalf("got %v, want ErrUnexpectedNull", err)
	}
}

func TestInterpretClosureCall(t *testing.T) {
	m := NewVM(DefaultGCConfig())

	addChunk := NewChunk()
	addChunk.WriteOp(OpGetLocal, 1)
	addChunk.WriteU16(0, 1)
	addChunk.WriteOp(OpGetLocal, 1)
	addChunk.WriteU16(1, 1)
	addChunk.WriteOp(OpAdd, 1)
	addChunk.WriteOp(OpReturn, 1)
	addFn := m.NewFunction("add", FunctionScript, addChunk, nil)

	mainChunk := NewChunk()
	fnIdx := mainChunk.AddConstant(ObjValue(addFn))
	twoIdx := mainChunk.AddConstant(IntValue(2))
	threeIdx := mainChunk.AddConstant(IntValue(3))
	mainChunk.WriteOp(OpClosure, 1)
	mainChunk.WriteU16(uint16(fnIdx), 1)
	mainChunk.WriteOp(OpConstant, 1)
	mainChunk.WriteU16(uint16(twoIdx), 1)
	mainChunk.WriteOp(OpConstant, 1)
	mainChunk.WriteU16(uint16(threeIdx), 1)
	mainChunk.WriteOp(OpCall, 1)
	mainChunk.Write(2, 1)
	mainChunk.WriteOp(OpReturn, 1)

	mainFn := m.NewFunction("main", FunctionScript, mainChunk, nil)
	result, err := Interpret(m, mainFn)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsInt() || result.AsInt() != 5 {
		t.Errorf("result = %v, want Int(5)", result)
	}
}

func TestInterpretListBuildAndIndex(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	c := NewChunk()
	typeIdx := c.AddConstant(ObjValue(m.NewTypeObj(m.Types.Number())))
	aIdx := c.AddConstant(IntValue(10))
	bIdx := c.AddConstant(IntValue(20))
	oneIdx := c.AddConstant(IntValue(1))

	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(typeIdx), 1)
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(aIdx), 1)
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(bIdx), 1)
	c.WriteOp(OpBuildList, 1)
	c.WriteU16(2, 1)
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(oneIdx), 1)
	c.WriteOp(OpGetIndex, 1)
	c.WriteOp(OpReturn, 1)

	fn := m.NewFunction("main", FunctionScript, c, nil)
	result, err := Interpret(m, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsInt() || result.AsInt() != 20 {
		t.Errorf("result = %v, want Int(20) (list[1])", result)
	}
}

func TestInterpretMapMissingKeyReturnsNull(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	c := NewChunk()
	keyType := c.AddConstant(ObjValue(m.NewTypeObj(m.Types.String())))
	valType := c.AddConstant(ObjValue(m.NewTypeObj(m.Types.Number())))
	missingKey := c.AddConstant(ObjValue(m.InternString("nope")))

	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(keyType), 1)
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(valType), 1)
	c.WriteOp(OpBuildMap, 1)
	c.WriteU16(0, 1)
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(missingKey), 1)
	c.WriteOp(OpGetIndex, 1)
	c.WriteOp(OpReturn, 1)

	fn := m.NewFunction("main", FunctionScript, c, nil)
	result, err := Interpret(m, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsNull() {
		t.Errorf("result = %v, want Null for a missing map key", result)
	}
}

func TestInterpretThrowCaught(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	c := NewChunk()
	msgIdx := c.AddConstant(ObjValue(m.InternString("boom")))

	c.WriteOp(OpPushCatch, 1)
	catchOperand := len(c.Code)
	c.WriteU16(0, 1) // patched below
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(msgIdx), 1)
	c.WriteOp(OpThrow, 1)
	catchTarget := len(c.Code)
	patchU16(c, catchOperand, uint16(catchTarget))
	c.WriteOp(OpPopCatch, 1)
	c.WriteOp(OpReturn, 1)

	fn := m.NewFunction("main", FunctionScript, c, nil)
	result, err := Interpret(m, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !Eql(result, ObjValue(m.InternString("boom"))) {
		t.Errorf("result = %v, want the thrown value", result)
	}
}

func TestInterpretThrowUncaught(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	c := NewChunk()
	msgIdx := c.AddConstant(ObjValue(m.InternString("boom")))
	c.WriteOp(OpConstant, 1)
	c.WriteU16(uint16(msgIdx), 1)
	c.WriteOp(OpThrow, 1)
	c.WriteOp(OpReturn, 1)

	fn := m.NewFunction("main", FunctionScript, c, nil)
	_, err := Interpret(m, fn)
	re, ok := err.(*RuntimeError)
	if !ok || re.Kind != ErrCustom {
		t.Fatalf("got %v, want an uncaught ErrCustom", err)
	}
}

// TestInterpretResumeUncaughtThrowPropagatesToResumer exercises §7's
// propagation rule through doResume's Propagate call: an error that
// unwinds an entire resumed fiber re-raises in the resumer at its
// last resume point, rather than vanishing or surfacing some other way.
func TestInterpretResumeUncaughtThrowPropagatesToResumer(t *testing.T) {
	m := NewVM(DefaultGCConfig())

	genChunk := NewChunk()
	msgIdx := genChunk.AddConstant(ObjValue(m.InternString("boom")))
	genChunk.WriteOp(OpConstant, 1)
	genChunk.WriteU16(uint16(msgIdx), 1)
	genChunk.WriteOp(OpThrow, 1)
	genChunk.WriteOp(OpReturn, 1)

	yieldingSig := &TypeDef{Kind: TypeFunction, payload: &TypeUnion{Function: &FunctionType{
		Return: m.Types.Number(), Yield: m.Types.Number(),
	}}}
	genFn := m.NewFunction("gen", FunctionAnonymous, genChunk, yieldingSig)
	genFiber := m.NewFiberObj(m.NewClosure(genFn, nil))

	mainChunk := NewChunk()
	fiberConst := mainChunk.AddConstant(ObjValue(genFiber))
	resumeName := mainChunk.AddConstant(ObjValue(m.InternString("resume")))
	mainChunk.WriteOp(OpConstant, 1)
	mainChunk.WriteU16(uint16(fiberConst), 1)
	mainChunk.WriteOp(OpInvoke, 1)
	mainChunk.WriteU16(uint16(resumeName), 1)
	mainChunk.Write(0, 1)
	mainChunk.WriteOp(OpReturn, 1)

	mainFn := m.NewFunction("main", FunctionScript, mainChunk, nil)
	_, err := Interpret(m, mainFn)
	re, ok := err.(*RuntimeError)
	if !ok || re.Kind != ErrCustom {
		t.Fatalf("got %v, want the generator's uncaught throw to propagate out as ErrCustom", err)
	}
	if genFiber.Status() != Over {
		t.Errorf("generator status = %v, want Over", genFiber.Status())
	}
}

func TestInterpretForeachOverList(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	list := m.NewList(m.Types.Number())
	list.Append(m.Collector(), IntValue(1))
	list.Append(m.Collector(), IntValue(2))
	list.Append(m.Collector(), IntValue(3))

	c := NewChunk()
	listIdx := c.AddConstant(ObjValue(list))
	zeroIdx := c.AddConstant(IntValue(0))
	nullIdx := c.AddConstant(Null)

	c.WriteOp(OpConstant, 1) // local 0: sum = 0
	c.WriteU16(uint16(zeroIdx), 1)
	c.WriteOp(OpConstant, 1) // local 1: cursor = Null
	c.WriteU16(uint16(nullIdx), 1)
	c.WriteOp(OpConstant, 1) // local 2: collection = list
	c.WriteU16(uint16(listIdx), 1)

	loopStart := len(c.Code)
	c.WriteOp(OpGetLocal, 1) // push collection (ForeachNext peeks this)
	c.WriteU16(2, 1)
	c.WriteOp(OpGetLocal, 1) // push cursor (ForeachNext pops this)
	c.WriteU16(1, 1)
	c.WriteOp(OpForeachNext, 1)
	exitOperand := len(c.Code)
	c.WriteU16(0, 1) // patched below
	// continue path: stack is [collection, next, value]
	c.WriteOp(OpGetLocal, 1) // push sum
	c.WriteU16(0, 1)
	c.WriteOp(OpAdd, 1) // sum + value -> [collection, next, newSum]
	c.WriteOp(OpSetLocal, 1) // sum = newSum (peek, no pop)
	c.WriteU16(0, 1)
	c.WriteOp(OpPop, 1) // -> [collection, next]
	c.WriteOp(OpSetLocal, 1) // cursor = next (peek, no pop)
	c.WriteU16(1, 1)
	c.WriteOp(OpPop, 1) // -> [collection]
	c.WriteOp(OpPop, 1) // -> []
	c.WriteOp(OpLoop, 1)
	c.WriteU16(uint16(loopStart), 1)
	loopExit := len(c.Code)
	patchU16(c, exitOperand, uint16(loopExit))
	// exit path: OpForeachNext already popped the collection itself
	c.WriteOp(OpGetLocal, 1)
	c.WriteU16(0, 1)
	c.WriteOp(OpReturn, 1)

	fn := m.NewFunction("main", FunctionScript, c, nil)
	result, err := Interpret(m, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsInt() || result.AsInt() != 6 {
		t.Errorf("result = %v, want Int(6) (sum of 1+2+3)", result)
	}
}

func TestInterpretFiberYieldResume(t *testing.T) {
	m := NewVM(DefaultGCConfig())

	genChunk := NewChunk()
	tenIdx := genChunk.AddConstant(IntValue(10))
	twentyIdx := genChunk.AddConstant(IntValue(20))
	genChunk.WriteOp(OpConstant, 1)
	genChunk.WriteU16(uint16(tenIdx), 1)
	genChunk.WriteOp(OpYield, 1)
	genChunk.WriteOp(OpConstant, 1)
	genChunk.WriteU16(uint16(twentyIdx), 1)
	genChunk.WriteOp(OpReturn, 1)

	yieldingSig := &TypeDef{Kind: TypeFunction, payload: &TypeUnion{Function: &FunctionType{
		Return: m.Types.Number(), Yield: m.Types.Number(),
	}}}
	genFn := m.NewFunction("gen", FunctionAnonymous, genChunk, yieldingSig)
	if !genFn.IsYielding() {
		t.Fatal("gen's signature should mark it as a yielding function")
	}
	genClosure := m.NewClosure(genFn, nil)
	genFiber := m.NewFiberObj(genClosure)

	mainChunk := NewChunk()
	resumeName := mainChunk.AddConstant(ObjValue(m.InternString("resume")))
	fiberConst := mainChunk.AddConstant(ObjValue(genFiber))

	mainChunk.WriteOp(OpConstant, 1)
	mainChunk.WriteU16(uint16(fiberConst), 1)
	mainChunk.WriteOp(OpInvoke, 1)
	mainChunk.WriteU16(uint16(resumeName), 1)
	mainChunk.Write(0, 1)
	mainChunk.WriteOp(OpPop, 1)

	mainChunk.WriteOp(OpConstant, 1)
	mainChunk.WriteU16(uint16(fiberConst), 1)
	mainChunk.WriteOp(OpInvoke, 1)
	mainChunk.WriteU16(uint16(resumeName), 1)
	mainChunk.Write(0, 1)
	mainChunk.WriteOp(OpReturn, 1)

	mainFn := m.NewFunction("main", FunctionScript, mainChunk, nil)
	result, err := Interpret(m, mainFn)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsInt() || result.AsInt() != 20 {
		t.Errorf("result = %v, want Int(20) after the generator resumes past its yield", result)
	}
	if genFiber.Status() != Over {
		t.Errorf("fiber status = %v, want Over after it returns", genFiber.Status())
	}
}

// TestInterpretFiberRepeatedResumeYieldsThenNull exercises §8 scenario
// 1 directly: a fiber yielding 1, 2, 3 must hand each value back to
// its own resumer in turn, then Null once it runs past its last yield,
// ending Over — not the stale Null a resuming fiber's own yieldValue
// would produce if Yield wrote to the wrong fiber's slot.
func TestInterpretFiberRepeatedResumeYieldsThenNull(t *testing.T) {
	m := NewVM(DefaultGCConfig())

	genChunk := NewChunk()
	for _, n := range []int64{1, 2, 3} {
		idx := genChunk.AddConstant(IntValue(n))
		genChunk.WriteOp(OpConstant, 1)
		genChunk.WriteU16(uint16(idx), 1)
		genChunk.WriteOp(OpYield, 1)
	}
	genChunk.WriteOp(OpNull, 1)
	genChunk.WriteOp(OpReturn, 1)

	yieldingSig := &TypeDef{Kind: TypeFunction, payload: &TypeUnion{Function: &FunctionType{
		Return: m.Types.Number(), Yield: m.Types.Number(),
	}}}
	genFn := m.NewFunction("gen", FunctionAnonymous, genChunk, yieldingSig)
	genClosure := m.NewClosure(genFn, nil)
	genFiber := m.NewFiberObj(genClosure)

	resumeOnce := func() Value {
		c := NewChunk()
		fiberConst := c.AddConstant(ObjValue(genFiber))
		nameIdx := c.AddConstant(ObjValue(m.InternString("resume")))
		c.WriteOp(OpConstant, 1)
		c.WriteU16(uint16(fiberConst), 1)
		c.WriteOp(OpInvoke, 1)
		c.WriteU16(uint16(nameIdx), 1)
		c.Write(0, 1)
		c.WriteOp(OpReturn, 1)

		fn := m.NewFunction("step", FunctionScript, c, nil)
		v, err := Interpret(m, fn)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}

	want := []int64{1, 2, 3}
	for i, w := range want {
		got := resumeOnce()
		if !got.IsInt() || got.AsInt() != w {
			t.Errorf("resume #%d = %v, want Int(%d)", i+1, got, w)
		}
	}

	final := resumeOnce()
	if final != Null {
		t.Errorf("resume after the last yield = %v, want Null", final)
	}
	if genFiber.Status() != Over {
		t.Errorf("status = %v, want Over after the generator returns", genFiber.Status())
	}
}

func TestNativeGuardHeldDuringCall(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	held := false
	native := m.NewNative("probe", nil, func(vm *VM, recv Value, args []Value) (Value, error) {
		held = !vm.NativeGuardAvailable()
		return Null, nil
	})
	if _, err := m.callNative(native.fn, Null, nil); err != nil {
		t.Fatal(err)
	}
	if !held {
		t.Error("the native guard must be held while a native function runs")
	}
	if !m.NativeGuardAvailable() {
		t.Error("the native guard must be free again once the call returns")
	}
}
