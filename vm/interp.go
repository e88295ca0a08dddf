package vm

// ---------------------------------------------------------------------------
// Interpreter: the bytecode dispatch loop (§5, §9)
//
// Fibers are scheduled without goroutines: runFiber is a plain recursive
// Go function, so OpYield suspends a fiber by simply returning up the Go
// call stack to whichever OpResume handler most recently called
// runFiber, and OpResume resumes a fiber by calling runFiber again,
// nested one level deeper. This matches §9's guidance that a re-entrant
// call stack is simpler than a stackful coroutine here, since at most
// one fiber is ever actually running.
// ---------------------------------------------------------------------------

// fiberOutcome is runFiber's result: exactly one of the three fields is
// meaningful, discriminated by yielded/err.
type fiberOutcome struct {
	value   Value
	err     *RuntimeError
	yielded bool
}

// Interpret runs fn as the program's root fiber to completion (or to its
// first uncaught error) and returns its final value.
func Interpret(vm *VM, fn *FunctionObj) (Value, error) {
	closure := vm.NewClosure(fn, nil)
	root := vm.NewFiberObj(closure)
	root.status = Running
	root.frames = []CallFrame{{Closure: closure, BasePtr: 0, CatchIP: -1}}
	vm.root = root
	vm.current = root
	outcome := runFiber(vm, root)
	if outcome.err != nil {
		return Null, outcome.err
	}
	return outcome.value, nil
}

// asRuntimeError normalizes any error returned by a helper (Add, Sub,
// RequireInt, ToHashable, a native member function, ...) into the
// taxonomy Throw/Propagate understand. Helpers that already construct a
// *RuntimeError pass straight through; anything else becomes ErrCustom
// carrying its message as a string.
func asRuntimeError(err error) *RuntimeError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RuntimeError); ok {
		return re
	}
	return &RuntimeError{Kind: ErrCustom, Message: err.Error()}
}

func custom(vm *VM, msg string) *RuntimeError {
	return Custom(ObjValue(vm.InternString(msg)))
}

// errorValue projects a RuntimeError into the Value a catch clause binds
// its exception variable to: the original thrown value for a `throw`,
// or an interned string of the diagnostic message otherwise.
func errorValue(vm *VM, err *RuntimeError) Value {
	if err.Kind == ErrCustom {
		return err.Value
	}
	return ObjValue(vm.InternString(err.Error()))
}

// raise installs err on f (possibly jumping to an installed catch
// clause) and reports how the dispatch loop should continue.
func raise(vm *VM, f *Fiber, err *RuntimeError) fiberOutcome {
	caught, catchIP := Throw(f, err)
	if caught {
		cf := &f.frames[len(f.frames)-1]
		cf.IP = catchIP
		f.push(errorValue(vm, err))
		return fiberOutcome{} // sentinel: caller must re-check and continue, not return
	}
	return fiberOutcome{err: err}
}

// runFiber executes f from its current instruction pointer until it
// returns, yields, or raises an uncaught error.
func runFiber(vm *VM, f *Fiber) fiberOutcome {
	for {
		frame := &f.frames[len(f.frames)-1]
		chunk := frame.Closure.fn.chunk
		op := OpCode(chunk.Code[frame.IP])
		frame.IP++

		switch op {
		case OpConstant:
			idx := chunk.ReadU16(frame.IP)
			frame.IP += 2
			f.push(chunk.Constants[idx])

		case OpNull:
			f.push(Null)
		case OpTrue:
			f.push(True)
		case OpFalse:
			f.push(False)
		case OpPop:
			f.pop()

		case OpGetLocal:
			slot := int(chunk.ReadU16(frame.IP))
			frame.IP += 2
			f.push(f.stack[frame.BasePtr+slot])
		case OpSetLocal:
			slot := int(chunk.ReadU16(frame.IP))
			frame.IP += 2
			f.stack[frame.BasePtr+slot] = f.peek(0)

		case OpGetGlobal:
			idx := chunk.ReadU16(frame.IP)
			frame.IP += 2
			name := chunk.Constants[idx].AsObj().(*StringObj)
			v, ok := vm.Globals.Get(name)
			if !ok {
				if out := settle(vm, f, raise(vm, f, UnexpectedNull("undefined global `"+name.s+"`"))); out != nil {
					return *out
				}
				continue
			}
			f.push(v)
		case OpSetGlobal:
			idx := chunk.ReadU16(frame.IP)
			frame.IP += 2
			name := chunk.Constants[idx].AsObj().(*StringObj)
			vm.Globals.Set(name, f.peek(0))
		case OpDefineGlobal:
			idx := chunk.ReadU16(frame.IP)
			frame.IP += 2
			name := chunk.Constants[idx].AsObj().(*StringObj)
			vm.Globals.Set(name, f.pop())

		case OpGetUpvalue:
			idx := int(chunk.Code[frame.IP])
			frame.IP++
			f.push(frame.Closure.upvalues[idx].Get())
		case OpSetUpvalue:
			idx := int(chunk.Code[frame.IP])
			frame.IP++
			frame.Closure.upvalues[idx].Set(f.peek(0))
		case OpCloseUpvalue:
			slot := int(chunk.ReadU16(frame.IP))
			frame.IP += 2
			f.closeUpvaluesFrom(frame.BasePtr + slot)

		case OpGetField:
			idx := chunk.ReadU16(frame.IP)
			frame.IP += 2
			name := chunk.Constants[idx].AsObj().(*StringObj)
			recv := f.pop()
			v, ok := resolveMember(vm, recv, name)
			if !ok {
				if out := settle(vm, f, raise(vm, f, custom(vm, "no such field `"+name.s+"`"))); out != nil {
					return *out
				}
				continue
			}
			f.push(v)
		case OpSetField:
			idx := chunk.ReadU16(frame.IP)
			frame.IP += 2
			name := chunk.Constants[idx].AsObj().(*StringObj)
			val := f.pop()
			recv := f.pop()
			oi, ok := recv.ObjOrNil().(*ObjectInstance)
			if !ok {
				if out := settle(vm, f, raise(vm, f, custom(vm, "cannot set a field on a non-instance value"))); out != nil {
					return *out
				}
				continue
			}
			oi.SetField(vm.gc, name, val)
			f.push(val)
		case OpGetSuperField:
			idx := chunk.ReadU16(frame.IP)
			frame.IP += 2
			name := chunk.Constants[idx].AsObj().(*StringObj)
			self := f.pop()
			home := frame.HomeClass
			if home == nil || home.Super == nil {
				if out := settle(vm, f, raise(vm, f, custom(vm, "no superclass for `super."+name.s+"`"))); out != nil {
					return *out
				}
				continue
			}
			m, cur := home.Super.LookupMethod(name.s)
			if m == nil {
				if out := settle(vm, f, raise(vm, f, custom(vm, "no such super method `"+name.s+"`"))); out != nil {
					return *out
				}
				continue
			}
			bound := vm.NewBoundClosure(self, m.Closure)
			bound.home = cur
			f.push(ObjValue(bound))

		case OpGetIndex:
			idx := f.pop()
			recv := f.pop()
			v, err := indexGet(vm, recv, idx)
			if err != nil {
				if out := settle(vm, f, raise(vm, f, err)); out != nil {
					return *out
				}
				continue
			}
			f.push(v)
		case OpSetIndex:
			val := f.pop()
			idx := f.pop()
			recv := f.pop()
			if err := indexSet(vm, recv, idx, val); err != nil {
				if out := settle(vm, f, raise(vm, f, err)); out != nil {
					return *out
				}
				continue
			}
			f.push(val)

		case OpInvoke:
			idx := chunk.ReadU16(frame.IP)
			frame.IP += 2
			argCount := int(chunk.Code[frame.IP])
			frame.IP++
			name := chunk.Constants[idx].AsObj().(*StringObj)
			recvSlot := f.stackTop - argCount - 1
			recv := f.stack[recvSlot]
			callee, ok := resolveMember(vm, recv, name)
			if !ok {
				if out := settle(vm, f, raise(vm, f, custom(vm, "no such method `"+name.s+"`"))); out != nil {
					return *out
				}
				continue
			}
			f.stack[recvSlot] = callee
			if err := call(vm, f, argCount); err != nil {
				if out := settle(vm, f, raise(vm, f, err)); out != nil {
					return *out
				}
			}
			continue

		case OpAdd:
			b, a := f.pop(), f.pop()
			v, err := addValues(vm, a, b)
			if err != nil {
				if out := settle(vm, f, raise(vm, f, asRuntimeError(err))); out != nil {
					return *out
				}
				continue
			}
			f.push(v)
		case OpSub:
			b, a := f.pop(), f.pop()
			v, err := Sub(a, b)
			if err != nil {
				if out := settle(vm, f, raise(vm, f, asRuntimeError(err))); out != nil {
					return *out
				}
				continue
			}
			f.push(v)
		case OpMul:
			b, a := f.pop(), f.pop()
			v, err := Mul(a, b)
			if err != nil {
				if out := settle(vm, f, raise(vm, f, asRuntimeError(err))); out != nil {
					return *out
				}
				continue
			}
			f.push(v)
		case OpDiv:
			b, a := f.pop(), f.pop()
			v, err := Div(a, b)
			if err != nil {
				if out := settle(vm, f, raise(vm, f, asRuntimeError(err))); out != nil {
					return *out
				}
				continue
			}
			f.push(v)
		case OpMod:
			b, a := f.pop(), f.pop()
			v, err := Mod(a, b)
			if err != nil {
				if out := settle(vm, f, raise(vm, f, asRuntimeError(err))); out != nil {
					return *out
				}
				continue
			}
			f.push(v)
		case OpEqual:
			b, a := f.pop(), f.pop()
			f.push(BoolValue(Eql(a, b)))
		case OpGreater:
			b, a := f.pop(), f.pop()
			gt, err := Greater(a, b)
			if err != nil {
				if out := settle(vm, f, raise(vm, f, asRuntimeError(err))); out != nil {
					return *out
				}
				continue
			}
			f.push(BoolValue(gt))
		case OpLess:
			b, a := f.pop(), f.pop()
			lt, err := Less(a, b)
			if err != nil {
				if out := settle(vm, f, raise(vm, f, asRuntimeError(err))); out != nil {
					return *out
				}
				continue
			}
			f.push(BoolValue(lt))
		case OpNot:
			a := f.pop()
			f.push(BoolValue(!a.IsTruthy()))
		case OpNegate:
			a := f.pop()
			switch {
			case a.IsInt():
				f.push(IntValue(-a.AsInt()))
			case a.IsFloat():
				f.push(FloatValue(-a.AsFloat()))
			default:
				if out := settle(vm, f, raise(vm, f, BadNumber("`-` requires a number"))); out != nil {
					return *out
				}
			}

		case OpJump:
			target := int(chunk.ReadU16(frame.IP))
			frame.IP = target
		case OpJumpIfFalse:
			target := int(chunk.ReadU16(frame.IP))
			frame.IP += 2
			if !f.peek(0).IsTruthy() {
				frame.IP = target
			}
		case OpLoop:
			target := int(chunk.ReadU16(frame.IP))
			frame.IP = target

		case OpCall:
			argCount := int(chunk.Code[frame.IP])
			frame.IP++
			if err := call(vm, f, argCount); err != nil {
				if out := settle(vm, f, raise(vm, f, err)); out != nil {
					return *out
				}
			}
			continue

		case OpClosure:
			idx := chunk.ReadU16(frame.IP)
			frame.IP += 2
			fn := chunk.Constants[idx].AsObj().(*FunctionObj)
			ups := make([]*UpValueObj, len(fn.upvalues))
			for i, slot := range fn.upvalues {
				if slot.isLocal {
					ups[i] = f.captureUpvalue(vm, frame.BasePtr+slot.index)
				} else {
					ups[i] = frame.Closure.upvalues[slot.index]
				}
			}
			f.push(ObjValue(vm.NewClosure(fn, ups)))

		case OpReturn:
			result := f.pop()
			f.closeUpvaluesFrom(frame.BasePtr)
			returnBase := frame.ReturnBase
			f.frames = f.frames[:len(f.frames)-1]
			if len(f.frames) == 0 {
				f.status = Over
				return fiberOutcome{value: result}
			}
			f.stackTop = returnBase
			f.push(result)
			continue

		case OpYield:
			v := f.pop()
			parent, err := Yield(f, v)
			if err != nil {
				if out := settle(vm, f, raise(vm, f, asRuntimeError(err))); out != nil {
					return *out
				}
				continue
			}
			_ = parent
			return fiberOutcome{yielded: true}

		case OpResume:
			argCount := int(chunk.Code[frame.IP])
			frame.IP++
			args := f.popN(argCount)
			target, ok := f.pop().ObjOrNil().(*Fiber)
			if !ok {
				if out := settle(vm, f, raise(vm, f, custom(vm, "resume target is not a fiber"))); out != nil {
					return *out
				}
				continue
			}
			val, rerr := doResume(vm, f, target, args)
			if rerr != nil {
				if out := settle(vm, f, raise(vm, f, rerr)); out != nil {
					return *out
				}
				continue
			}
			f.push(val)

		case OpThrow:
			v := f.pop()
			if out := settle(vm, f, raise(vm, f, Custom(v))); out != nil {
				return *out
			}

		case OpPushCatch:
			target := int(chunk.ReadU16(frame.IP))
			frame.IP += 2
			frame.CatchIP = target
			frame.HasCatch = true
		case OpPopCatch:
			frame.HasCatch = false

		case OpBuildList:
			count := int(chunk.ReadU16(frame.IP))
			frame.IP += 2
			items := f.popN(count)
			itemType := f.pop().AsObj().(*TypeObj)
			list := vm.NewList(itemType.def)
			for _, it := range items {
				list.Append(vm.gc, it)
			}
			f.push(ObjValue(list))
		case OpBuildMap:
			count := int(chunk.ReadU16(frame.IP))
			frame.IP += 2
			pairs := f.popN(count * 2)
			valueType := f.pop().AsObj().(*TypeObj)
			keyType := f.pop().AsObj().(*TypeObj)
			m := vm.NewMap(keyType.def, valueType.def)
			buildErr := false
			for i := 0; i < len(pairs); i += 2 {
				h, err := ToHashable(pairs[i])
				if err != nil {
					if out := settle(vm, f, raise(vm, f, asRuntimeError(err))); out != nil {
						return *out
					}
					buildErr = true
					break
				}
				m.Set(vm.gc, h, pairs[i+1])
			}
			if buildErr {
				continue
			}
			f.push(ObjValue(m))

		case OpIs:
			t := f.pop().AsObj().(*TypeObj)
			v := f.pop()
			f.push(BoolValue(Is(v, t.def)))
		case OpTypeOf:
			v := f.pop()
			f.push(ObjValue(TypeOfValue(vm, v).obj(vm.gc)))

		case OpForeachNext:
			exitTarget := int(chunk.ReadU16(frame.IP))
			frame.IP += 2
			cursor := f.pop()
			collection := f.peek(0)
			next, value := foreachAdvance(collection, cursor)
			if next.IsNull() {
				f.pop() // drop the collection, loop is over
				frame.IP = exitTarget
				continue
			}
			f.push(next)
			f.push(value)

		default:
			panic("buzz: unknown opcode in chunk")
		}
	}
}

// settle interprets raise's sentinel return: a non-nil *fiberOutcome
// means runFiber should return it immediately; nil means the error was
// caught in-fiber and the dispatch loop should simply continue.
func settle(vm *VM, f *Fiber, out fiberOutcome) *fiberOutcome {
	if out.err != nil {
		return &out
	}
	return nil
}

// ---------------------------------------------------------------------------
// call: the single call-site helper behind OpCall, OpInvoke, and
// super-method dispatch (§4.6, §4.3)
// ---------------------------------------------------------------------------

// call assumes the stack holds [callee, arg1, ..., argN] with argN at the
// top, and either pushes a new CallFrame (closures) or runs the call to
// completion synchronously and pushes its result (natives).
func call(vm *VM, f *Fiber, argCount int) *RuntimeError {
	calleeSlot := f.stackTop - argCount - 1
	callee := f.stack[calleeSlot]
	switch o := callee.ObjOrNil().(type) {
	case *ClosureObj:
		f.frames = append(f.frames, CallFrame{
			Closure: o, BasePtr: calleeSlot + 1, ReturnBase: calleeSlot, CatchIP: -1,
		})
		return nil
	case *NativeObj:
		args := append([]Value(nil), f.stack[calleeSlot+1:f.stackTop]...)
		result, err := vm.callNative(o.fn, Null, args)
		if err != nil {
			return asRuntimeError(err)
		}
		f.stackTop = calleeSlot
		f.push(result)
		return nil
	case *BoundObj:
		args := append([]Value(nil), f.stack[calleeSlot+1:f.stackTop]...)
		if o.closure != nil {
			f.stack[calleeSlot] = o.receiver
			f.frames = append(f.frames, CallFrame{
				Closure: o.closure, BasePtr: calleeSlot, ReturnBase: calleeSlot, CatchIP: -1, HomeClass: o.home,
			})
			return nil
		}
		result, err := vm.callNative(o.native.fn, o.receiver, args)
		if err != nil {
			return asRuntimeError(err)
		}
		f.stackTop = calleeSlot
		f.push(result)
		return nil
	default:
		return custom(vm, "value is not callable")
	}
}

// resolveMember implements the field/method search order used by
// OpGetField, OpInvoke, and OpSetField's read-side counterpart: instance
// fields and methods first (§4.6), then the receiver kind's built-in
// member table (§4.7), wrapped as a Bound value so it behaves like any
// other callable.
func resolveMember(vm *VM, receiver Value, name *StringObj) (Value, bool) {
	if oi, ok := receiver.ObjOrNil().(*ObjectInstance); ok {
		if v, found := oi.GetField(vm.gc, name); found {
			return v, true
		}
	}
	if n, ok := vm.Members.Member(vm.gc, receiver.ObjKindOf(), name); ok {
		return ObjValue(vm.NewBoundNative(receiver, n)), true
	}
	return Null, false
}

// addValues implements OpAdd: string operands concatenate through the
// intern table (so "ab"+"c" and "a"+"bc" land on the same StringObj,
// §8's interning round-trip scenario); otherwise it's numeric Add.
func addValues(vm *VM, a, b Value) (Value, error) {
	if sa, ok := a.ObjOrNil().(*StringObj); ok {
		if sb, ok2 := b.ObjOrNil().(*StringObj); ok2 {
			return ObjValue(vm.Interned.Concat(vm.gc, sa.s, sb.s)), nil
		}
	}
	return Add(a, b)
}

func indexGet(vm *VM, recv, idx Value) (Value, *RuntimeError) {
	switch o := recv.ObjOrNil().(type) {
	case *ListObj:
		i, err := RequireInt(idx)
		if err != nil {
			return Null, asRuntimeError(err)
		}
		v, ok := o.Get(int(i))
		if !ok {
			return Null, OutOfBound("list index out of bound")
		}
		return v, nil
	case *MapObj:
		h, err := ToHashable(idx)
		if err != nil {
			return Null, asRuntimeError(err)
		}
		v, ok := o.Get(h)
		if !ok {
			return Null, nil
		}
		return v, nil
	}
	return Null, custom(vm, "value is not indexable")
}

func indexSet(vm *VM, recv, idx, val Value) *RuntimeError {
	switch o := recv.ObjOrNil().(type) {
	case *ListObj:
		i, err := RequireInt(idx)
		if err != nil {
			return asRuntimeError(err)
		}
		if !o.Set(vm.gc, int(i), val) {
			return OutOfBound("list index out of bound")
		}
		return nil
	case *MapObj:
		h, err := ToHashable(idx)
		if err != nil {
			return asRuntimeError(err)
		}
		o.Set(vm.gc, h, val)
		return nil
	}
	return custom(vm, "value is not indexable")
}

// foreachAdvance computes OpForeachNext's (nextCursor, value) pair for
// the two iterable container kinds. A Null nextCursor signals
// exhaustion. For a List the cursor is the previous index (or Null); for
// a Map it is the previous key (or Null), and the yielded value is the
// value stored at the new key.
func foreachAdvance(collection, cursor Value) (Value, Value) {
	switch o := collection.ObjOrNil().(type) {
	case *ListObj:
		var prev *int
		if cursor.IsInt() {
			i := int(cursor.AsInt())
			prev = &i
		}
		next := o.Next(prev)
		if next == nil {
			return Null, Null
		}
		v, _ := o.Get(*next)
		return IntValue(int64(*next)), v
	case *MapObj:
		var prev *HashableValue
		if !cursor.IsNull() {
			h := ToHashableOrPanic(cursor)
			prev = &h
		}
		next := o.RawNext(prev)
		if next == nil {
			return Null, Null
		}
		h := ToHashableOrPanic(*next)
		v, _ := o.Get(h)
		return *next, v
	}
	return Null, Null
}

// ---------------------------------------------------------------------------
// Fiber resume/yield plumbing (§4.3, §7 propagation)
// ---------------------------------------------------------------------------

// doResume drives one resume(target, args) from caller: it performs the
// status transition, recursively interprets target until it yields,
// returns, or raises, and restores vm.current on the way back out so a
// chain of nested resumes always reflects whichever fiber's runFiber
// frame is innermost on the Go call stack.
func doResume(vm *VM, caller, target *Fiber, args []Value) (Value, *RuntimeError) {
	next, err := Resume(caller, target, args)
	if err != nil {
		return Null, asRuntimeError(err)
	}
	prev := vm.current
	vm.current = next
	outcome := runFiber(vm, next)
	vm.current = prev
	if outcome.yielded {
		return next.yieldValue, nil
	}
	if outcome.err != nil {
		// §7 propagation: an error that unwound the entire target fiber
		// re-raises in the resumer at its last resume point. Propagate
		// reads it back off the fiber Throw recorded it on rather than
		// trusting outcome.err to still be the right value once more
		// resume levels are involved.
		_, propagated := Propagate(next)
		return Null, propagated
	}
	return outcome.value, nil
}
