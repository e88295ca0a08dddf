package vm

import "math"

// ---------------------------------------------------------------------------
// Numeric operations (§7: BadNumber, NumberOverflow, DivisionByZero)
// ---------------------------------------------------------------------------

// Add/Sub/Mul/Div/Mod implement arithmetic across the Int/Float shapes
// Buzz admits, matching the spec's "no implicit numeric coercion outside
// explicitly specified rules" non-goal: Int+Int stays Int (checked for
// overflow), Float is involved when at least one operand is Float, and
// an Int operand widens to Float for that single operation (the one
// explicitly specified rule) without mutating either value's static type.
// Div is the exception for two Ints: an inexact quotient is a Float.

func Add(a, b Value) (Value, error) {
	if a.IsInt() && b.IsInt() {
		x, y := a.AsInt(), b.AsInt()
		sum := x + y
		if (y > 0 && sum < x) || (y < 0 && sum > x) {
			return Null, NumberOverflow("integer overflow in +")
		}
		return IntValue(sum), nil
	}
	x, y, err := bothFloat(a, b)
	if err != nil {
		return Null, err
	}
	return FloatValue(x + y), nil
}

func Sub(a, b Value) (Value, error) {
	if a.IsInt() && b.IsInt() {
		x, y := a.AsInt(), b.AsInt()
		diff := x - y
		if (y < 0 && diff < x) || (y > 0 && diff > x) {
			return Null, NumberOverflow("integer overflow in -")
		}
		return IntValue(diff), nil
	}
	x, y, err := bothFloat(a, b)
	if err != nil {
		return Null, err
	}
	return FloatValue(x - y), nil
}

func Mul(a, b Value) (Value, error) {
	if a.IsInt() && b.IsInt() {
		x, y := a.AsInt(), b.AsInt()
		if x == 0 || y == 0 {
			return IntValue(0), nil
		}
		prod := x * y
		if prod/y != x {
			return Null, NumberOverflow("integer overflow in *")
		}
		return IntValue(prod), nil
	}
	x, y, err := bothFloat(a, b)
	if err != nil {
		return Null, err
	}
	return FloatValue(x * y), nil
}

func Div(a, b Value) (Value, error) {
	if a.IsInt() && b.IsInt() {
		y := b.AsInt()
		if y == 0 {
			return Null, DivisionByZero()
		}
		x := a.AsInt()
		if x == math.MinInt64 && y == -1 {
			return Null, NumberOverflow("integer overflow in /")
		}
		if x%y == 0 {
			return IntValue(x / y), nil
		}
		return FloatValue(float64(x) / float64(y)), nil
	}
	x, y, err := bothFloat(a, b)
	if err != nil {
		return Null, err
	}
	if y == 0 {
		return Null, DivisionByZero()
	}
	return FloatValue(x / y), nil
}

func Mod(a, b Value) (Value, error) {
	if !a.IsInt() || !b.IsInt() {
		return Null, BadNumber("`%` requires two integers")
	}
	y := b.AsInt()
	if y == 0 {
		return Null, DivisionByZero()
	}
	return IntValue(a.AsInt() % y), nil
}

// Greater and Less back OpGreater/OpLess: both operands widen to Float
// for the comparison under the same single coercion rule Add/Sub use,
// without mutating either value's static type.
func Greater(a, b Value) (bool, error) {
	if a.IsInt() && b.IsInt() {
		return a.AsInt() > b.AsInt(), nil
	}
	x, y, err := bothFloat(a, b)
	if err != nil {
		return false, err
	}
	return x > y, nil
}

func Less(a, b Value) (bool, error) {
	if a.IsInt() && b.IsInt() {
		return a.AsInt() < b.AsInt(), nil
	}
	x, y, err := bothFloat(a, b)
	if err != nil {
		return false, err
	}
	return x < y, nil
}

func bothFloat(a, b Value) (float64, float64, error) {
	x, err := toFloat(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := toFloat(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func toFloat(v Value) (float64, error) {
	switch {
	case v.IsFloat():
		return v.AsFloat(), nil
	case v.IsInt():
		return float64(v.AsInt()), nil
	default:
		return 0, BadNumber("expected a number")
	}
}

// RequireInt extracts an Int, returning BadNumber if v is a Float
// (§7: "non-integer where integer required").
func RequireInt(v Value) (int64, error) {
	if !v.IsInt() {
		return 0, BadNumber("expected an integer")
	}
	return v.AsInt(), nil
}
