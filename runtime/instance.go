package runtime

import (
	"context"
	stderrors "errors"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/bindgen"
	"github.com/wippyai/wbg-runtime/engine"
	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/eventloop"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/value"
)

// Instance is a running module with its environment.
// Not safe for concurrent use: calls, Run and Close belong to one goroutine.
// Other goroutines hand work over with Post.
type Instance struct {
	module *Module
	inst   *engine.Instance
	env    *bindgen.Env
}

// Env returns the instance's environment.
func (i *Instance) Env() *bindgen.Env {
	return i.env
}

// Loop returns the instance's event loop.
func (i *Instance) Loop() *eventloop.Loop {
	return i.env.Loop
}

// Post schedules fn on the instance's loop. Safe from any goroutine.
func (i *Instance) Post(fn func(ctx context.Context, inst *Instance) error) {
	i.env.Loop.Post(func(ctx context.Context) error {
		return fn(ctx, i)
	})
}

// Run drives the event loop until no timers, promises or in-flight host
// work remain, ctx is done, or a task fails. A task failure is reported
// through the fatal hook.
func (i *Instance) Run(ctx context.Context) error {
	if err := i.env.Err(); err != nil {
		return err
	}
	err := i.env.Loop.Run(bindgen.WithEnv(ctx, i.env))
	if err != nil && ctx.Err() == nil {
		i.fail(err)
	}
	return err
}

// Global returns the value of exported global name.
func (i *Instance) Global(name string) (uint64, bool) {
	g := i.inst.Module().ExportedGlobal(name)
	if g == nil {
		return 0, false
	}
	return g.Get(), true
}

// CallRaw invokes export name with core values.
func (i *Instance) CallRaw(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if err := i.env.Err(); err != nil {
		return nil, err
	}
	fn, err := i.inst.Function(name)
	if err != nil {
		return nil, err
	}
	res, err := fn.Call(bindgen.WithEnv(ctx, i.env), args...)
	i.env.Views.Invalidate()
	if err != nil {
		if ctx.Err() == nil {
			i.fail(err)
		}
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindFatal, err, "call "+name)
	}
	i.env.Loop.DrainMicrotasks(bindgen.WithEnv(ctx, i.env))
	if stopped, err := i.env.Loop.Stopped(); stopped && err != nil {
		i.fail(err)
		return res, err
	}
	return res, nil
}

// Call invokes export name, discarding results. Arguments are passed the way
// generated bindings pass them:
//
//	string, []byte              (ptr, len) of a fresh module allocation
//	float64, float32            f64, f32
//	int, int32, uint32, bool    i32
//	resource.Handle             i32, passed through
//	anything else               i32 handle to the value
func (i *Instance) Call(ctx context.Context, name string, args ...any) error {
	_, err := i.call(ctx, name, 0, args)
	return err
}

// CallValue invokes an export returning a handle and takes its value out
// of the handle table.
func (i *Instance) CallValue(ctx context.Context, name string, args ...any) (any, error) {
	res, err := i.call(ctx, name, 0, args)
	if err != nil {
		return nil, err
	}
	if len(res) != 1 {
		return nil, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
			Detail("%s returns %d values, want one handle", name, len(res)).
			Build()
	}
	return i.env.Heap.Take(resource.Handle(api.DecodeU32(res[0])))
}

// CallString invokes an export that writes a (ptr, len) string pair to a
// return pointer passed as its first argument. The string is copied out
// and its allocation released.
func (i *Instance) CallString(ctx context.Context, name string, args ...any) (string, error) {
	var out string
	err := i.env.WithRetSlot(bindgen.WithEnv(ctx, i.env), 16, func(retptr uint32) error {
		if _, err := i.call(ctx, name, retptr, args); err != nil {
			return err
		}
		ptr, n, err := i.env.Strings.ReadRetPair(retptr)
		if err != nil {
			return err
		}
		s, err := i.env.Strings.ReadString(ptr, n)
		if err != nil {
			return err
		}
		out = s
		return i.env.Strings.Free(bindgen.WithEnv(ctx, i.env), ptr, n)
	})
	return out, err
}

// call encodes args and invokes name. A non-zero retptr is passed first.
func (i *Instance) call(ctx context.Context, name string, retptr uint32, args []any) ([]uint64, error) {
	fn, err := i.inst.Function(name)
	if err != nil {
		return nil, err
	}
	raw := make([]uint64, 0, len(args)+1)
	if retptr != 0 {
		raw = append(raw, api.EncodeU32(retptr))
	}
	for _, arg := range args {
		raw, err = i.encodeArg(ctx, raw, arg)
		if err != nil {
			return nil, err
		}
	}
	if want := len(fn.Definition().ParamTypes()); want != len(raw) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
			Detail("%s takes %d core values, got %d", name, want, len(raw)).
			Build()
	}
	return i.CallRaw(ctx, name, raw...)
}

func (i *Instance) encodeArg(ctx context.Context, raw []uint64, arg any) ([]uint64, error) {
	switch v := arg.(type) {
	case string:
		ptr, n, err := i.env.Strings.WriteString(bindgen.WithEnv(ctx, i.env), v)
		if err != nil {
			return nil, err
		}
		return append(raw, api.EncodeU32(ptr), api.EncodeU32(n)), nil
	case []byte:
		ptr, n, err := i.env.Strings.WriteBytes(bindgen.WithEnv(ctx, i.env), v)
		if err != nil {
			return nil, err
		}
		return append(raw, api.EncodeU32(ptr), api.EncodeU32(n)), nil
	case float64:
		return append(raw, api.EncodeF64(v)), nil
	case float32:
		return append(raw, api.EncodeF32(v)), nil
	case int:
		if int64(v) < math.MinInt32 || int64(v) > math.MaxUint32 {
			return nil, errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
				Value(v).
				Detail("int argument does not fit in i32").
				Build()
		}
		return append(raw, uint64(uint32(v))), nil
	case int32:
		return append(raw, api.EncodeI32(v)), nil
	case uint32:
		return append(raw, api.EncodeU32(v)), nil
	case bool:
		if v {
			return append(raw, 1), nil
		}
		return append(raw, 0), nil
	case resource.Handle:
		return append(raw, api.EncodeU32(uint32(v))), nil
	}
	return append(raw, api.EncodeU32(uint32(i.env.Heap.Put(arg)))), nil
}

// fail reports an unrecoverable module error through the environment.
func (i *Instance) fail(err error) {
	if i.env.Err() != nil {
		return
	}
	msg := trapMessage(err)
	i.module.runtime.logger.Debug("module trapped", zap.Error(err))
	i.env.Fatal(msg)
}

// trapMessage returns the text shown for a trap: the message module code
// threw, the debug form of a rethrown value, or the error text.
func trapMessage(err error) string {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if werr, ok := e.(*errors.Error); ok && werr.Kind == errors.KindThrown {
			return werr.Detail
		}
	}
	var exc *errors.Exception
	if stderrors.As(err, &exc) {
		return value.DebugString(exc.Value)
	}
	return err.Error()
}

// Close releases live handles and the module instance.
func (i *Instance) Close(ctx context.Context) error {
	herr := i.env.Close()
	if err := i.inst.Close(ctx); err != nil {
		return err
	}
	return herr
}
