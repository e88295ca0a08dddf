package vm

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// List built-in methods (§4.5)
// ---------------------------------------------------------------------------

var listMembers = MemberTable{
	"append": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		l := recv.AsObj().(*ListObj)
		l.Append(vm.gc, args[0])
		return recv, nil
	}},
	"len": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		l := recv.AsObj().(*ListObj)
		return IntValue(int64(l.Len())), nil
	}},
	"remove": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		l := recv.AsObj().(*ListObj)
		i, err := RequireInt(args[0])
		if err != nil {
			return Null, err
		}
		v, _ := l.Remove(vm.gc, int(i))
		return v, nil
	}},
	"sub": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		l := recv.AsObj().(*ListObj)
		start, err := RequireInt(args[0])
		if err != nil {
			return Null, err
		}
		var length *int
		if len(args) > 1 && !args[1].IsNull() {
			n, err := RequireInt(args[1])
			if err != nil {
				return Null, err
			}
			ni := int(n)
			length = &ni
		}
		items, err := l.Sub(int(start), length)
		if err != nil {
			return Null, err
		}
		out := vm.NewList(l.itemType)
		for _, v := range items {
			out.Append(vm.gc, v)
		}
		return ObjValue(out), nil
	}},
	"indexOf": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		l := recv.AsObj().(*ListObj)
		idx, ok := l.IndexOf(args[0])
		if !ok {
			return Null, nil
		}
		return IntValue(int64(idx)), nil
	}},
	"join": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		l := recv.AsObj().(*ListObj)
		sep := args[0].AsObj().(*StringObj)
		parts := make([]string, l.Len())
		for i := range parts {
			v, _ := l.Get(i)
			parts[i] = stringify(v)
		}
		return vm.NewString(strings.Join(parts, sep.s)).asValue(), nil
	}},
	"next": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		l := recv.AsObj().(*ListObj)
		var prev *int
		if len(args) > 0 && !args[0].IsNull() {
			n, err := RequireInt(args[0])
			if err != nil {
				return Null, err
			}
			ni := int(n)
			prev = &ni
		}
		next := l.Next(prev)
		if next == nil {
			return Null, nil
		}
		return IntValue(int64(*next)), nil
	}},
}

// stringify renders v for join() without going through the full
// interpreter-level toString dispatch (out of scope here, §2).
func stringify(v Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsInt():
		return strconv.FormatInt(v.AsInt(), 10)
	case v.IsFloat():
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case v.IsObj():
		return v.AsObj().String()
	default:
		return ""
	}
}
