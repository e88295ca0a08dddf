package vm

// ---------------------------------------------------------------------------
// Pattern built-in methods (§4.5)
// ---------------------------------------------------------------------------

var patternMembers = MemberTable{
	"match": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		p := recv.AsObj().(*PatternObj)
		subject := args[0].AsObj().(*StringObj)
		groups := p.Match(subject.s)
		if groups == nil {
			return Null, nil
		}
		out := vm.NewList(vm.Types.String())
		for _, g := range groups {
			out.Append(vm.gc, vm.NewString(g).asValue())
		}
		return ObjValue(out), nil
	}},
	"matchAll": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		p := recv.AsObj().(*PatternObj)
		subject := args[0].AsObj().(*StringObj)
		matches := p.MatchAll(subject.s)
		out := vm.NewList(vm.Types.List(vm.Types.String()))
		for _, groups := range matches {
			inner := vm.NewList(vm.Types.String())
			for _, g := range groups {
				inner.Append(vm.gc, vm.NewString(g).asValue())
			}
			out.Append(vm.gc, ObjValue(inner))
		}
		return ObjValue(out), nil
	}},
}
