package value

import (
	"context"
	"errors"
	"math"
	"testing"
)

type response struct{}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want Kind
	}{
		{"undefined", Undefined, KindUndefined},
		{"nil", nil, KindUndefined},
		{"null", Null, KindNull},
		{"bool", true, KindBoolean},
		{"float", 1.5, KindNumber},
		{"int", 3, KindNumber},
		{"string", "x", KindString},
		{"bytes", &Uint8Array{}, KindObject},
		{"error", NewError(TypeErrorName, "bad"), KindObject},
		{"func", Func(func(context.Context, ...any) (any, error) { return nil, nil }), KindFunction},
		{"named", Named("tick", nil), KindFunction},
		{"opaque", &response{}, KindObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.v); got != tt.want {
				t.Errorf("KindOf(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	if !IsObject(NewObject()) || IsObject(Null) {
		t.Error("null must not be an object")
	}
	if IsObject(Func(nil)) {
		t.Error("functions are not objects")
	}
	if !IsUndefined(Undefined) || IsUndefined(Null) {
		t.Error("IsUndefined")
	}
	if !IsString("") {
		t.Error("empty string is a string")
	}
}

func TestAs(t *testing.T) {
	var v any = &Uint8Array{Data: []byte{1}}
	arr, ok := As[*Uint8Array](v)
	if !ok || arr.Data[0] != 1 {
		t.Fatal("As should return the typed value")
	}
	if _, ok := As[*Float32Array](v); ok {
		t.Fatal("As should fail for a different type")
	}
}

func TestEqual(t *testing.T) {
	obj := NewObject()
	tests := []struct {
		a, b any
		want bool
	}{
		{1.0, 1, true},
		{math.NaN(), math.NaN(), false},
		{"a", "a", true},
		{"a", "b", false},
		{Undefined, Null, true},
		{obj, obj, true},
		{obj, NewObject(), false},
		{true, 1.0, false},
		{Func(nil), Func(nil), false},
	}
	for i, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("case %d: Equal(%v, %v) = %v, want %v", i, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDebugString(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"undefined", Undefined, "undefined"},
		{"null", Null, "null"},
		{"bool", false, "false"},
		{"integer", 42.0, "42"},
		{"fraction", 0.5, "0.5"},
		{"negative", -3.25, "-3.25"},
		{"large", 1e21, "1e+21"},
		{"small", 1.5e-7, "1.5e-7"},
		{"nan", math.NaN(), "NaN"},
		{"inf", math.Inf(-1), "-Infinity"},
		{"string", "hi", `"hi"`},
		{"array", &Array{Elems: []any{1.0, "a", Null}}, `[1, "a", null]`},
		{"empty array", &Array{}, "[]"},
		{"object", &Object{Fields: map[string]any{"a": 1.0, "b": "x", "u": Undefined}}, `Object({"a":1,"b":"x"})`},
		{"error", &Error{Name: "TypeError", Message: "bad", Stack: "at main"}, "TypeError: bad\nat main"},
		{"go error", errors.New("boom"), "Error: boom\n"},
		{"named func", Named("tick", nil), "Function(tick)"},
		{"anon func", Func(nil), "Function"},
		{"opaque", &response{}, "response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DebugString(tt.v); got != tt.want {
				t.Errorf("DebugString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError(t *testing.T) {
	cause := errors.New("disk full")
	e := FromError(cause)
	if e.Name != ErrorName || e.Message != "disk full" {
		t.Errorf("FromError = %+v", e)
	}
	if !errors.Is(e, cause) {
		t.Error("FromError should keep the cause")
	}
	q := NewError(QuotaExceededErrorName, "too big")
	if FromError(q) != q {
		t.Error("FromError should return host errors unchanged")
	}
	if q.Error() != "QuotaExceededError: too big" {
		t.Errorf("Error() = %q", q.Error())
	}
}
