package vm

// ---------------------------------------------------------------------------
// TypeOfValue: OpTypeOf's runtime type-reflection dispatch (§4.1, §4.7)
// ---------------------------------------------------------------------------

// TypeOfValue returns the canonical TypeDef describing v's runtime shape.
// Container kinds reuse the TypeDef already carried on the object rather
// than re-deriving one, so two lists of the same item type keep sharing
// their canonical TypeDef (§3.3's hash-consing invariant).
func TypeOfValue(vm *VM, v Value) *TypeDef {
	switch v.Kind() {
	case KindNull:
		return vm.Types.Void()
	case KindBool:
		return vm.Types.Bool()
	case KindInt, KindFloat:
		return vm.Types.Number()
	case KindObj:
		return typeOfObj(vm, v.AsObj())
	}
	return vm.Types.Void()
}

func typeOfObj(vm *VM, o Obj) *TypeDef {
	switch ov := o.(type) {
	case *StringObj:
		return vm.Types.String()
	case *PatternObj:
		return vm.Types.Pattern()
	case *TypeObj:
		return vm.Types.TypeType()
	case *UserData:
		return vm.Types.UserData()
	case *ObjectDef:
		return vm.Types.TypeType()
	case *EnumDef:
		return vm.Types.TypeType()
	case *ObjectInstance:
		return ov.class.TypeDef
	case *EnumInstanceObj:
		return ov.enum.TypeDef
	case *ListObj:
		return vm.Types.List(ov.itemType)
	case *MapObj:
		return vm.Types.Map(ov.keyType, ov.valueType)
	case *FunctionObj:
		return ov.signature
	case *ClosureObj:
		return ov.fn.signature
	case *BoundObj:
		return ov.signature()
	case *NativeObj:
		return ov.sig
	case *Fiber:
		if ov.entry == nil {
			return vm.Types.Fiber(vm.Types.Void(), vm.Types.Void())
		}
		ret, yield := ov.entry.fn.ReturnType(), ov.entry.fn.YieldType()
		if ret == nil {
			ret = vm.Types.Void()
		}
		if yield == nil {
			yield = vm.Types.Void()
		}
		return vm.Types.Fiber(ret, yield)
	case *UpValueObj:
		return TypeOfValue(vm, ov.Get())
	}
	return vm.Types.Void()
}
