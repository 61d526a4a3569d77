package staticeval

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Truthy applies JavaScript's ToBoolean.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil, undefinedValue:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	default:
		return true
	}
}

func toNumber(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}

		return 0, true
	case nil:
		return 0, true
	case undefinedValue:
		return math.NaN(), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, true
		}

		lower := strings.ToLower(s)
		for prefix, base := range map[string]int{"0x": 16, "0o": 8, "0b": 2} {
			if strings.HasPrefix(lower, prefix) {
				n, err := strconv.ParseUint(lower[2:], base, 64)
				if err != nil {
					return math.NaN(), true
				}

				return float64(n), true
			}
		}

		switch s {
		case "Infinity", "+Infinity":
			return math.Inf(1), true
		case "-Infinity":
			return math.Inf(-1), true
		}

		if strings.ContainsAny(lower, "inafx_") {
			return math.NaN(), true
		}

		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN(), true
		}

		return f, true
	}

	return 0, false
}

// ToString applies JavaScript's ToString to primitive, array and object
// values. Functions have no static string form.
func ToString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case float64:
		return FormatNumber(v), true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "null", true
	case undefinedValue:
		return "undefined", true
	case []any:
		parts := make([]string, len(v))
		for i, el := range v {
			if el == nil || el == Undefined {
				continue
			}

			s, ok := ToString(el)
			if !ok {
				return "", false
			}

			parts[i] = s
		}

		return strings.Join(parts, ","), true
	case *Object:
		return "[object Object]", true
	}

	return "", false
}

// FormatNumber renders a float64 the way Number.prototype.toString does for
// the common cases.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	s := strconv.FormatFloat(f, 'g', -1, 64)
	mantissa, exp, found := strings.Cut(s, "e")
	if !found {
		return s
	}

	sign := exp[0]
	digits := strings.TrimLeft(exp[1:], "0")

	return mantissa + "e" + string(sign) + digits
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	return int32(uint32(int64(math.Trunc(math.Mod(f, 1<<32)))))
}

func toUint32(f float64) uint32 {
	return uint32(toInt32(f))
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, undefinedValue, bool, float64, string:
		return true
	}

	return false
}

func strictEquals(a, b any) (bool, bool) {
	if !isPrimitive(a) || !isPrimitive(b) {
		if oa, ok := a.(*Object); ok {
			if ob, ok := b.(*Object); ok {
				return oa == ob, true
			}
		}

		return false, false
	}

	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv, true
	case string:
		bv, ok := b.(string)
		return ok && av == bv, true
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv, true
	case nil:
		return b == nil, true
	case undefinedValue:
		return b == Undefined, true
	}

	return false, false
}

func looseEquals(a, b any) (bool, bool) {
	if !isPrimitive(a) || !isPrimitive(b) {
		return strictEquals(a, b)
	}

	nullish := func(v any) bool { return v == nil || v == Undefined }
	if nullish(a) || nullish(b) {
		return nullish(a) && nullish(b), true
	}

	if eq, _ := strictEquals(a, b); eq {
		return true, true
	}

	_, aStr := a.(string)
	_, bStr := b.(string)

	if aStr && bStr {
		return false, true
	}

	an, _ := toNumber(a)
	bn, _ := toNumber(b)

	return an == bn, true
}

func compare(op string, a, b any) (any, bool) {
	as, aStr := a.(string)
	bs, bStr := b.(string)

	if aStr && bStr {
		ac := utf16.Encode([]rune(as))
		bc := utf16.Encode([]rune(bs))

		cmp := 0
		for i := 0; i < len(ac) && i < len(bc) && cmp == 0; i++ {
			switch {
			case ac[i] < bc[i]:
				cmp = -1
			case ac[i] > bc[i]:
				cmp = 1
			}
		}

		if cmp == 0 {
			switch {
			case len(ac) < len(bc):
				cmp = -1
			case len(ac) > len(bc):
				cmp = 1
			}
		}

		switch op {
		case "<":
			return cmp < 0, true
		case "<=":
			return cmp <= 0, true
		case ">":
			return cmp > 0, true
		default:
			return cmp >= 0, true
		}
	}

	an, ok1 := toNumber(a)
	bn, ok2 := toNumber(b)

	if !ok1 || !ok2 {
		return nil, false
	}

	if math.IsNaN(an) || math.IsNaN(bn) {
		return false, true
	}

	switch op {
	case "<":
		return an < bn, true
	case "<=":
		return an <= bn, true
	case ">":
		return an > bn, true
	default:
		return an >= bn, true
	}
}

func add(a, b any) (any, bool) {
	_, aStr := a.(string)
	_, bStr := b.(string)

	_, aObj := a.(*Object)
	_, bObj := b.(*Object)
	_, aArr := a.([]any)
	_, bArr := b.([]any)

	if aStr || bStr || aObj || bObj || aArr || bArr {
		as, ok1 := ToString(a)
		bs, ok2 := ToString(b)

		if !ok1 || !ok2 {
			return nil, false
		}

		return as + bs, true
	}

	an, ok1 := toNumber(a)
	bn, ok2 := toNumber(b)

	if !ok1 || !ok2 {
		return nil, false
	}

	return an + bn, true
}

//nolint:gocyclo // operator table
func binaryOp(op string, a, b any) (any, bool) {
	switch op {
	case "&&":
		if Truthy(a) {
			return b, true
		}

		return a, true
	case "||":
		if Truthy(a) {
			return a, true
		}

		return b, true
	case "??":
		if a == nil || a == Undefined {
			return b, true
		}

		return a, true
	case "+":
		return add(a, b)
	case "==", "!=":
		eq, ok := looseEquals(a, b)
		return eq == (op == "=="), ok
	case "===", "!==":
		eq, ok := strictEquals(a, b)
		return eq == (op == "==="), ok
	case "<", "<=", ">", ">=":
		return compare(op, a, b)
	}

	if !isPrimitive(a) || !isPrimitive(b) {
		return nil, false
	}

	an, _ := toNumber(a)
	bn, _ := toNumber(b)

	switch op {
	case "-":
		return an - bn, true
	case "*":
		return an * bn, true
	case "/":
		return an / bn, true
	case "%":
		return math.Mod(an, bn), true
	case "**":
		return math.Pow(an, bn), true
	case "|":
		return float64(toInt32(an) | toInt32(bn)), true
	case "&":
		return float64(toInt32(an) & toInt32(bn)), true
	case "^":
		return float64(toInt32(an) ^ toInt32(bn)), true
	case "<<":
		return float64(toInt32(an) << (toUint32(bn) & 31)), true
	case ">>":
		return float64(toInt32(an) >> (toUint32(bn) & 31)), true
	case ">>>":
		return float64(toUint32(an) >> (toUint32(bn) & 31)), true
	}

	return nil, false
}

func unaryOp(op string, a any) (any, bool) {
	switch op {
	case "!":
		return !Truthy(a), true
	}

	if !isPrimitive(a) {
		return nil, false
	}

	n, _ := toNumber(a)

	switch op {
	case "+":
		return n, true
	case "-":
		return -n, true
	case "~":
		return float64(^toInt32(n)), true
	}

	return nil, false
}
