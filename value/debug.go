package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DebugString renders v for diagnostics the way module code expects from
// __wbindgen_debug_string.
func DebugString(v any) string {
	switch x := v.(type) {
	case nil, undefinedValue:
		return "undefined"
	case nullValue:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case string:
		return `"` + x + `"`
	case *Array:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range x.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(DebugString(e))
		}
		b.WriteByte(']')
		return b.String()
	case *Object:
		data, err := json.Marshal(x)
		if err != nil {
			return "Object"
		}
		return "Object(" + string(data) + ")"
	case *Error:
		return x.Name + ": " + x.Message + "\n" + x.Stack
	case Callable:
		if n, ok := x.(interface{ Name() string }); ok && n.Name() != "" {
			return "Function(" + n.Name() + ")"
		}
		return "Function"
	case error:
		return ErrorName + ": " + x.Error() + "\n"
	}
	if n, ok := Number(v); ok {
		return FormatNumber(n)
	}
	return className(v)
}

// FormatNumber formats n the way numbers are converted to strings in host
// scripts: integers without a fraction, exponent form outside [1e-6, 1e21).
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == 0:
		return "0"
	}
	abs := math.Abs(n)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(n, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		return mant + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func className(v any) string {
	name := fmt.Sprintf("%T", v)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// MarshalJSON renders the object's fields, omitting undefined and function
// values.
func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonable(o))
}

func jsonable(v any) any {
	switch x := v.(type) {
	case nullValue:
		return nil
	case *Object:
		m := make(map[string]any, len(x.Fields))
		for k, f := range x.Fields {
			switch KindOf(f) {
			case KindUndefined, KindFunction:
				continue
			}
			m[k] = jsonable(f)
		}
		return m
	case *Array:
		out := make([]any, len(x.Elems))
		for i, e := range x.Elems {
			switch KindOf(e) {
			case KindUndefined, KindFunction:
				out[i] = nil
			default:
				out[i] = jsonable(e)
			}
		}
		return out
	case *Uint8Array:
		out := make([]int, len(x.Data))
		for i, b := range x.Data {
			out[i] = int(b)
		}
		return out
	case *Float32Array:
		return x.Data
	case *Int32Array:
		return x.Data
	case *Error:
		return map[string]any{}
	}
	if n, ok := Number(v); ok && (math.IsNaN(n) || math.IsInf(n, 0)) {
		return nil
	}
	return v
}
