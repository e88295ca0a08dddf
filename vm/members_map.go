package vm

// ---------------------------------------------------------------------------
// Map built-in methods (§4.5)
// ---------------------------------------------------------------------------

var mapMembers = MemberTable{
	"size": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		m := recv.AsObj().(*MapObj)
		return IntValue(int64(m.Size())), nil
	}},
	"remove": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		m := recv.AsObj().(*MapObj)
		k, err := ToHashable(args[0])
		if err != nil {
			return Null, UnexpectedNull(err.Error())
		}
		v, _ := m.Remove(vm.gc, k)
		return v, nil
	}},
	"keys": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		m := recv.AsObj().(*MapObj)
		out := vm.NewList(m.keyType)
		for _, k := range m.Keys() {
			out.Append(vm.gc, k)
		}
		return ObjValue(out), nil
	}},
	"values": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		m := recv.AsObj().(*MapObj)
		out := vm.NewList(m.valueType)
		for _, v := range m.Values() {
			out.Append(vm.gc, v)
		}
		return ObjValue(out), nil
	}},
	"rawNext": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		m := recv.AsObj().(*MapObj)
		var prev *HashableValue
		if len(args) > 0 && !args[0].IsNull() {
			h, err := ToHashable(args[0])
			if err != nil {
				return Null, UnexpectedNull(err.Error())
			}
			prev = &h
		}
		next := m.RawNext(prev)
		if next == nil {
			return Null, nil
		}
		return *next, nil
	}},
}
