package vm

import (
	"encoding/base64"
	"strings"
)

// ---------------------------------------------------------------------------
// String built-in methods (§4.5)
// ---------------------------------------------------------------------------

var stringMembers = MemberTable{
	"len": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		s := recv.AsObj().(*StringObj)
		return IntValue(int64(len(s.s))), nil
	}},
	"sub": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		s := recv.AsObj().(*StringObj)
		start, err := RequireInt(args[0])
		if err != nil {
			return Null, err
		}
		if start < 0 || int(start) > len(s.s) {
			return Null, OutOfBound("`start` is out of bound")
		}
		end := int64(len(s.s))
		if len(args) > 1 && !args[1].IsNull() {
			length, err := RequireInt(args[1])
			if err != nil {
				return Null, err
			}
			if start+length < end {
				end = start + length
			}
		}
		return vm.NewString(s.s[int(start):int(end)]).asValue(), nil
	}},
	"split": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		s := recv.AsObj().(*StringObj)
		sep := args[0].AsObj().(*StringObj)
		parts := strings.Split(s.s, sep.s)
		list := vm.NewList(vm.Types.String())
		for _, p := range parts {
			list.Append(vm.gc, vm.NewString(p).asValue())
		}
		return ObjValue(list), nil
	}},
	"indexOf": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		s := recv.AsObj().(*StringObj)
		needle := args[0].AsObj().(*StringObj)
		idx := strings.Index(s.s, needle.s)
		if idx < 0 {
			return Null, nil
		}
		return IntValue(int64(idx)), nil
	}},
	"encodeBase64": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		s := recv.AsObj().(*StringObj)
		return vm.NewString(base64.StdEncoding.EncodeToString([]byte(s.s))).asValue(), nil
	}},
	"decodeBase64": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		s := recv.AsObj().(*StringObj)
		decoded, err := base64.StdEncoding.DecodeString(s.s)
		if err != nil {
			return Null, BadNumber("invalid base64 input")
		}
		return vm.NewString(string(decoded)).asValue(), nil
	}},
	"upper": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		s := recv.AsObj().(*StringObj)
		return vm.NewString(strings.ToUpper(s.s)).asValue(), nil
	}},
	"lower": {Fn: func(vm *VM, recv Value, args []Value) (Value, error) {
		s := recv.AsObj().(*StringObj)
		return vm.NewString(strings.ToLower(s.s)).asValue(), nil
	}},
}

func (s *StringObj) asValue() Value { return ObjValue(s) }
