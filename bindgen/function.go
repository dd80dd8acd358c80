package bindgen

import (
	"context"
	"math"

	"github.com/wippyai/wbg-runtime/closure"
	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/value"
)

// Function is the host value of a module closure. Calling it converts the
// arguments according to the closure's signature and runs the thunk.
type Function struct {
	env *Env
	c   *closure.Closure
}

// NewFunction wraps c as a callable host value.
func (e *Env) NewFunction(c *closure.Closure) *Function {
	return &Function{env: e, c: c}
}

// Closure returns the underlying closure binding.
func (f *Function) Closure() *closure.Closure {
	return f.c
}

// Name returns the thunk export name.
func (f *Function) Name() string {
	return f.c.Signature().Export
}

// Call implements value.Callable.
func (f *Function) Call(ctx context.Context, args ...any) (any, error) {
	if err := f.c.Ready(); err != nil {
		return nil, err
	}
	sig := f.c.Signature()
	raw := make([]uint64, len(sig.Args))
	var owned []resource.Handle
	for i, kind := range sig.Args {
		var arg any = value.Undefined
		if i < len(args) {
			arg = args[i]
		}
		enc, err := f.env.encodeArg(kind, arg)
		if err != nil {
			f.env.dropAll(owned)
			return nil, err
		}
		if kind == closure.ArgHandle {
			owned = append(owned, resource.Handle(uint32(enc)))
		}
		raw[i] = enc
	}

	// Handle arguments belong to the module once the thunk runs.
	results, err := f.c.Call(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !sig.Returns {
		return value.Undefined, nil
	}
	if len(results) == 0 {
		return nil, errors.New(errors.PhaseClosure, errors.KindTypeMismatch).
			Detail("%s returned no handle", sig.Export).Build()
	}
	return f.env.Heap.Take(resource.Handle(uint32(results[0])))
}

func (e *Env) encodeArg(kind closure.ArgKind, arg any) (uint64, error) {
	switch kind {
	case closure.ArgHandle:
		return uint64(e.Heap.Put(arg)), nil
	case closure.ArgF64:
		n, ok := value.Number(arg)
		if !ok {
			n = math.NaN()
		}
		return math.Float64bits(n), nil
	case closure.ArgI32:
		if b, ok := arg.(bool); ok {
			if b {
				return 1, nil
			}
			return 0, nil
		}
		n, _ := value.Number(arg)
		return uint64(uint32(int32(n))), nil
	}
	return 0, errors.New(errors.PhaseClosure, errors.KindUnsupported).
		Detail("argument kind %d", kind).Build()
}

func (e *Env) dropAll(hs []resource.Handle) {
	for _, h := range hs {
		_ = e.Heap.Drop(h)
	}
}

// Memory is the host value returned by __wbindgen_memory.
type Memory struct {
	env *Env
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint32 {
	return m.env.Views.Memory().Size()
}
