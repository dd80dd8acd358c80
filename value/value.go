// Package value defines the host values that module code reaches through
// handles, and the capability queries the bridge uses instead of dynamic
// type probes.
package value

import (
	"context"
	"math"
	"reflect"
)

// Kind is the coarse type tag of a host value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindObject
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindFunction:
		return "function"
	}
	return "unknown"
}

type undefinedValue struct{}

type nullValue struct{}

func (undefinedValue) String() string { return "undefined" }

func (nullValue) String() string { return "null" }

var (
	// Undefined is the value of reserved slots and of absent results.
	Undefined any = undefinedValue{}
	// Null is the explicit empty value.
	Null any = nullValue{}
)

// Callable is a host value module code can invoke.
type Callable interface {
	Call(ctx context.Context, args ...any) (any, error)
}

// Func adapts an ordinary function to Callable.
type Func func(ctx context.Context, args ...any) (any, error)

func (f Func) Call(ctx context.Context, args ...any) (any, error) {
	return f(ctx, args...)
}

type namedFunc struct {
	fn   Func
	name string
}

// Named returns a Callable that reports name in debug output.
func Named(name string, fn Func) Callable {
	return &namedFunc{name: name, fn: fn}
}

func (f *namedFunc) Call(ctx context.Context, args ...any) (any, error) {
	return f.fn(ctx, args...)
}

func (f *namedFunc) Name() string { return f.name }

// Uint8Array is a host-owned byte array.
type Uint8Array struct {
	Data []byte
}

// Float32Array is a host-owned float array.
type Float32Array struct {
	Data []float32
}

// Int32Array is a host-owned integer array.
type Int32Array struct {
	Data []int32
}

// Array is an ordered list of host values.
type Array struct {
	Elems []any
}

// Object is a keyed bag of host values.
type Object struct {
	Fields map[string]any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{Fields: make(map[string]any)}
}

// Common error names used by platform services.
const (
	ErrorName              = "Error"
	TypeErrorName          = "TypeError"
	SecurityErrorName      = "SecurityError"
	QuotaExceededErrorName = "QuotaExceededError"
	AbortErrorName         = "AbortError"
	NetworkErrorName       = "NetworkError"
)

// Error is a host error value. It is what module code receives from the
// exception register.
type Error struct {
	Cause   error
	Name    string
	Message string
	Stack   string
}

// NewError returns an Error with the given name and message.
func NewError(name, message string) *Error {
	return &Error{Name: name, Message: message}
}

func (e *Error) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// FromError converts a Go error into a host Error, keeping it as the cause.
func FromError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Name: ErrorName, Message: err.Error(), Cause: err}
}

// As returns v as T when v holds a T.
func As[T any](v any) (T, bool) {
	t, ok := v.(T)
	return t, ok
}

// KindOf reports the type tag of v. Go values without a dedicated tag are
// objects.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil, undefinedValue:
		return KindUndefined
	case nullValue:
		return KindNull
	case bool:
		return KindBoolean
	case string:
		return KindString
	case Callable:
		return KindFunction
	}
	if _, ok := Number(v); ok {
		return KindNumber
	}
	return KindObject
}

// Number returns v as a float64 when it is numeric.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// IsUndefined reports whether v is undefined. A nil interface counts.
func IsUndefined(v any) bool { return KindOf(v) == KindUndefined }

// IsNull reports whether v is null.
func IsNull(v any) bool { return KindOf(v) == KindNull }

// IsObject reports whether v is a non-null object. Functions are not objects.
func IsObject(v any) bool { return KindOf(v) == KindObject }

// IsFunction reports whether v can be called.
func IsFunction(v any) bool { return KindOf(v) == KindFunction }

// IsString reports whether v is a string.
func IsString(v any) bool { return KindOf(v) == KindString }

// Equal compares two host values. Numbers compare numerically with NaN
// unequal to itself, undefined and null are equal to each other, and other
// values compare by identity.
func Equal(a, b any) bool {
	ka, kb := KindOf(a), KindOf(b)
	if (ka == KindUndefined || ka == KindNull) && (kb == KindUndefined || kb == KindNull) {
		return true
	}
	if ka != kb {
		return false
	}
	if ka == KindNumber {
		x, _ := Number(a)
		y, _ := Number(b)
		return x == y && !math.IsNaN(x)
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
