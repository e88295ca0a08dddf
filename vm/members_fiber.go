package vm

// ---------------------------------------------------------------------------
// Fiber built-in methods (§4.3)
// ---------------------------------------------------------------------------

var fiberMembers = MemberTable{
	"over": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		f := recv.AsObj().(*Fiber)
		return BoolValue(f.IsOver()), nil
	}},
	"cancel": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		f := recv.AsObj().(*Fiber)
		f.Cancel()
		return Null, nil
	}},
	// resume mirrors the OpResume opcode's semantics for scripts that
	// drive a fiber as `f.resume(...)` rather than through the bare
	// keyword form; both paths funnel into doResume.
	"resume": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		target := recv.AsObj().(*Fiber)
		v, err := doResume(vm, vm.current, target, args)
		if err != nil {
			return Null, err
		}
		return v, nil
	}},
}
