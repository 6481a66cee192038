package templating

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Data values reach templates as int, float64, string or bool, so the
// arithmetic helpers accept any numeric-looking value. Results stay
// integral while both operands are.

type number struct {
	i       int
	f       float64
	isFloat bool
}

func toNumber(v any) number {
	switch n := v.(type) {
	case int:
		return number{i: n, f: float64(n)}
	case int64:
		return number{i: int(n), f: float64(n)}
	case int32:
		return number{i: int(n), f: float64(n)}
	case uint:
		return number{i: int(n), f: float64(n)}
	case uint64:
		return number{i: int(n), f: float64(n)}
	case float64:
		return number{i: int(n), f: n, isFloat: true}
	case float32:
		return number{i: int(n), f: float64(n), isFloat: true}
	case bool:
		if n {
			return number{i: 1, f: 1}
		}
		return number{}
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return number{i: i, f: float64(i)}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return number{i: int(f), f: f, isFloat: true}
		}
	}
	return number{}
}

func (n number) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}

func arith(a, b any, fi func(x, y int) int, ff func(x, y float64) float64) any {
	x, y := toNumber(a), toNumber(b)
	if x.isFloat || y.isFloat {
		return ff(x.f, y.f)
	}
	return fi(x.i, y.i)
}

// add returns a + b.
func add(a, b any) any {
	return arith(a, b, func(x, y int) int { return x + y }, func(x, y float64) float64 { return x + y })
}

// sub returns a - b.
func sub(a, b any) any {
	return arith(a, b, func(x, y int) int { return x - y }, func(x, y float64) float64 { return x - y })
}

// div returns a / b, integer division for integers. Returns 0 if b is 0.
func div(a, b any) any {
	if toNumber(b).f == 0 {
		return 0
	}
	return arith(a, b, func(x, y int) int { return x / y }, func(x, y float64) float64 { return x / y })
}

// mult returns a * b.
func mult(a, b any) any {
	return arith(a, b, func(x, y int) int { return x * y }, func(x, y float64) float64 { return x * y })
}

func maxOf(a, b any) any {
	x, y := toNumber(a), toNumber(b)
	if x.f >= y.f {
		return x.value()
	}
	return y.value()
}

func minOf(a, b any) any {
	x, y := toNumber(a), toNumber(b)
	if x.f <= y.f {
		return x.value()
	}
	return y.value()
}

// mod returns a % b. Returns 0 if b is 0.
func mod(a, b any) any {
	if toNumber(b).f == 0 {
		return 0
	}
	return arith(a, b, func(x, y int) int { return x % y }, math.Mod)
}

func inc(i any) any {
	return add(i, 1)
}

func dec(i any) any {
	return sub(i, 1)
}

// and returns true only if all arguments are truthy.
func and(args ...any) bool {
	for _, arg := range args {
		if !truth(arg) {
			return false
		}
	}
	return true
}

// or returns true if any argument is truthy.
func or(args ...any) bool {
	for _, arg := range args {
		if truth(arg) {
			return true
		}
	}
	return false
}

func not(arg any) bool {
	return !truth(arg)
}

// isSet returns true if a value is not its zero value.
func isSet(val any) bool {
	return truth(val)
}

// truth follows the template package: zero values and empty containers are
// false.
func truth(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return v.Len() > 0
	}
	return !v.IsZero()
}
