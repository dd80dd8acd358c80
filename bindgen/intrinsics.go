package bindgen

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/closure"
	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/eventloop"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/value"
)

// Namespace is the import module name of the bridge.
const Namespace = "wbg"

// Closure flags passed to __wbindgen_closure_new.
const (
	ClosureFlagMut uint32 = 1 << 0
)

// Intrinsics provides the core __wbindgen_* imports.
type Intrinsics struct{}

// Namespace returns the import module name.
func (Intrinsics) Namespace() string { return Namespace }

// Register returns the intrinsic handlers keyed by import name.
func (Intrinsics) Register() map[string]any {
	return map[string]any{
		"__wbindgen_object_drop_ref":   objectDropRef,
		"__wbindgen_object_clone_ref":  objectCloneRef,
		"__wbindgen_string_new":        stringNew,
		"__wbindgen_string_get":        stringGet,
		"__wbindgen_number_new":        numberNew,
		"__wbindgen_number_get":        numberGet,
		"__wbindgen_boolean_get":       booleanGet,
		"__wbindgen_is_undefined":      isKind(value.KindUndefined),
		"__wbindgen_is_null":           isKind(value.KindNull),
		"__wbindgen_is_object":         isKind(value.KindObject),
		"__wbindgen_is_function":       isKind(value.KindFunction),
		"__wbindgen_is_string":         isKind(value.KindString),
		"__wbindgen_jsval_eq":          jsvalEq,
		"__wbindgen_debug_string":      debugString,
		"__wbindgen_error_new":         errorNew,
		"__wbindgen_throw":             throw,
		"__wbindgen_rethrow":           rethrow,
		"__wbindgen_memory":            memoryObject,
		"__wbindgen_uint8_array_new":   uint8ArrayNew,
		"__wbindgen_float32_array_new": float32ArrayNew,
		"__wbindgen_array_length":      arrayLength,
		"__wbindgen_bytes_copy_to":     bytesCopyTo,
		"__wbindgen_cb_drop":           cbDrop,
		"__wbindgen_closure_new":       closureNew,
		"__wbindgen_promise_resolve":   promiseResolve,
		"__wbindgen_promise_then":      promiseThen,
		"__wbindgen_promise_then2":     promiseThen2,
		"__wbindgen_promise_new":       promiseNew,
		"__wbindgen_queue_microtask":   queueMicrotask,
		"__wbg_error_message":          errorMessage,
		"__wbg_error_stack":            errorStack,
	}
}

func objectDropRef(_ context.Context, env *Env, h resource.Handle) error {
	return env.Heap.Drop(h)
}

func objectCloneRef(_ context.Context, env *Env, h resource.Handle) (resource.Handle, error) {
	return env.Heap.Clone(h)
}

func stringNew(_ context.Context, env *Env, ptr, n uint32) (resource.Handle, error) {
	s, err := env.Strings.ReadString(ptr, n)
	if err != nil {
		return 0, err
	}
	return env.Heap.Put(s), nil
}

func stringGet(ctx context.Context, env *Env, retptr uint32, h resource.Handle) error {
	v, err := env.Heap.Get(h)
	if err != nil {
		return err
	}
	s, ok := v.(string)
	return env.Strings.WriteRetString(ctx, retptr, s, ok)
}

func numberNew(_ context.Context, env *Env, n float64) resource.Handle {
	return env.Heap.Put(n)
}

func numberGet(_ context.Context, env *Env, retptr uint32, h resource.Handle) error {
	v, err := env.Heap.Get(h)
	if err != nil {
		return err
	}
	n, ok := value.Number(v)
	return env.Strings.WriteRetOptionF64(retptr, n, ok)
}

// booleanGet returns 1 or 0 for booleans and 2 for anything else.
func booleanGet(_ context.Context, env *Env, h resource.Handle) (uint32, error) {
	v, err := env.Heap.Get(h)
	if err != nil {
		return 0, err
	}
	b, ok := v.(bool)
	switch {
	case !ok:
		return 2, nil
	case b:
		return 1, nil
	}
	return 0, nil
}

func isKind(k value.Kind) func(context.Context, *Env, resource.Handle) (bool, error) {
	return func(_ context.Context, env *Env, h resource.Handle) (bool, error) {
		v, err := env.Heap.Get(h)
		if err != nil {
			return false, err
		}
		return value.KindOf(v) == k, nil
	}
}

func jsvalEq(_ context.Context, env *Env, a, b resource.Handle) (bool, error) {
	va, err := env.Heap.Get(a)
	if err != nil {
		return false, err
	}
	vb, err := env.Heap.Get(b)
	if err != nil {
		return false, err
	}
	return value.Equal(va, vb), nil
}

func debugString(ctx context.Context, env *Env, retptr uint32, h resource.Handle) error {
	v, err := env.Heap.Get(h)
	if err != nil {
		return err
	}
	return env.Strings.WriteRetString(ctx, retptr, value.DebugString(v), true)
}

func errorNew(_ context.Context, env *Env, ptr, n uint32) (resource.Handle, error) {
	msg, err := env.Strings.ReadString(ptr, n)
	if err != nil {
		return 0, err
	}
	return env.Heap.Put(value.NewError(value.ErrorName, msg)), nil
}

func throw(_ context.Context, env *Env, ptr, n uint32) error {
	msg, err := env.Strings.ReadString(ptr, n)
	if err != nil {
		return err
	}
	return env.Throw(msg)
}

func rethrow(_ context.Context, env *Env, h resource.Handle) error {
	return env.Rethrow(h)
}

func memoryObject(_ context.Context, env *Env) resource.Handle {
	return env.Heap.Put(&Memory{env: env})
}

// Array constructors copy: the module may grow memory at any later call,
// which would leave an aliasing array pointing at a moved buffer.
func uint8ArrayNew(_ context.Context, env *Env, ptr, n uint32) (resource.Handle, error) {
	data, err := env.Strings.CopyBytes(ptr, n)
	if err != nil {
		return 0, err
	}
	return env.Heap.Put(&value.Uint8Array{Data: data}), nil
}

func float32ArrayNew(_ context.Context, env *Env, ptr, n uint32) (resource.Handle, error) {
	data, err := env.Strings.ReadFloat32s(ptr, n)
	if err != nil {
		return 0, err
	}
	return env.Heap.Put(&value.Float32Array{Data: data}), nil
}

func arrayLength(_ context.Context, env *Env, h resource.Handle) (uint32, error) {
	v, err := env.Heap.Get(h)
	if err != nil {
		return 0, err
	}
	switch a := v.(type) {
	case *value.Array:
		return uint32(len(a.Elems)), nil
	case *value.Uint8Array:
		return uint32(len(a.Data)), nil
	case *value.Float32Array:
		return uint32(len(a.Data)), nil
	case *value.Int32Array:
		return uint32(len(a.Data)), nil
	}
	return 0, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
		Handle(uint32(h)).Detail("value has no length").Build()
}

func bytesCopyTo(_ context.Context, env *Env, h resource.Handle, ptr uint32) error {
	arr, err := resource.Lookup[*value.Uint8Array](env.Heap, h)
	if err != nil {
		return err
	}
	return env.Strings.CopyTo(ptr, arr.Data)
}

// cbDrop releases the module's reference to a closure and reports whether
// it was the last one.
func cbDrop(_ context.Context, env *Env, h resource.Handle) (bool, error) {
	v, err := env.Heap.Take(h)
	if err != nil {
		return false, err
	}
	fn, ok := v.(*Function)
	if !ok {
		return false, errors.New(errors.PhaseClosure, errors.KindTypeMismatch).
			Handle(uint32(h)).Detail("handle does not hold a closure").Build()
	}
	return fn.c.ExternalDrop(), nil
}

func closureNew(_ context.Context, env *Env, a, b, dtor, sigID, flags uint32) (resource.Handle, error) {
	sig, err := env.Signatures.Lookup(sigID)
	if err != nil {
		return 0, err
	}
	kind := closure.Shared
	if flags&ClosureFlagMut != 0 {
		kind = closure.Mut
	}
	c := closure.New(env, a, b, dtor, kind, sig)
	if env.logger.Core().Enabled(zap.DebugLevel) {
		c.OnFinalize(func() {
			env.logger.Debug("closure finalized", zap.Uint32("dtor", dtor), zap.String("thunk", sig.Export))
		})
	}
	return env.Heap.Put(env.NewFunction(c)), nil
}

func callable(env *Env, h resource.Handle) (value.Callable, error) {
	v, err := env.Heap.Get(h)
	if err != nil {
		return nil, err
	}
	if value.IsUndefined(v) || value.IsNull(v) {
		return nil, nil
	}
	c, ok := v.(value.Callable)
	if !ok {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Handle(uint32(h)).Detail("value is not callable").Build()
	}
	return c, nil
}

func promise(env *Env, h resource.Handle) (*eventloop.Promise, error) {
	v, err := env.Heap.Get(h)
	if err != nil {
		return nil, err
	}
	return eventloop.ResolvedPromise(env.Loop, v), nil
}

func promiseResolve(_ context.Context, env *Env, h resource.Handle) (resource.Handle, error) {
	p, err := promise(env, h)
	if err != nil {
		return 0, err
	}
	return env.Heap.Put(p), nil
}

func promiseThen(ctx context.Context, env *Env, ph, cb resource.Handle) (resource.Handle, error) {
	return promiseThen2(ctx, env, ph, cb, resource.HandleUndefined)
}

func promiseThen2(_ context.Context, env *Env, ph, ok, fail resource.Handle) (resource.Handle, error) {
	p, err := promise(env, ph)
	if err != nil {
		return 0, err
	}
	onOk, err := callable(env, ok)
	if err != nil {
		return 0, err
	}
	onErr, err := callable(env, fail)
	if err != nil {
		return 0, err
	}
	return env.Heap.Put(p.Then(onOk, onErr)), nil
}

// promiseNew runs the module's executor closure (a, b) synchronously with
// resolve and reject functions. The closure is borrowed for this call only.
func promiseNew(ctx context.Context, env *Env, a, b uint32) (resource.Handle, error) {
	p, resolve, reject := eventloop.NewPromise(env.Loop)
	resolveFn := value.Named("resolve", func(_ context.Context, args ...any) (any, error) {
		resolve(firstArg(args))
		return value.Undefined, nil
	})
	rejectFn := value.Named("reject", func(_ context.Context, args ...any) (any, error) {
		reject(firstArg(args))
		return value.Undefined, nil
	})

	c := closure.NewBorrowed(env, a, b, closure.Invoke2)
	defer c.Release()
	if _, err := env.NewFunction(c).Call(ctx, resolveFn, rejectFn); err != nil {
		if errors.IsFatal(err) {
			return 0, err
		}
		reject(HostValue(err))
	}
	return env.Heap.Put(p), nil
}

func queueMicrotask(_ context.Context, env *Env, cb resource.Handle) error {
	fn, err := callable(env, cb)
	if err != nil {
		return err
	}
	if fn == nil {
		return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Handle(uint32(cb)).Detail("microtask is not callable").Build()
	}
	env.Loop.QueueMicrotask(func(ctx context.Context) error {
		_, err := fn.Call(WithEnv(ctx, env))
		if err != nil && !errors.IsFatal(err) {
			env.logger.Warn("uncaught error in microtask", zap.Error(err))
			return nil
		}
		return err
	})
	return nil
}

func errorMessage(ctx context.Context, env *Env, retptr uint32, h resource.Handle) error {
	v, err := env.Heap.Get(h)
	if err != nil {
		return err
	}
	switch e := v.(type) {
	case *value.Error:
		return env.Strings.WriteRetString(ctx, retptr, e.Message, true)
	case error:
		return env.Strings.WriteRetString(ctx, retptr, e.Error(), true)
	}
	return env.Strings.WriteRetString(ctx, retptr, "", false)
}

func errorStack(ctx context.Context, env *Env, retptr uint32, h resource.Handle) error {
	v, err := env.Heap.Get(h)
	if err != nil {
		return err
	}
	e, ok := v.(*value.Error)
	if !ok {
		return env.Strings.WriteRetString(ctx, retptr, "", false)
	}
	return env.Strings.WriteRetString(ctx, retptr, e.Stack, true)
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return value.Undefined
	}
	return args[0]
}
