package engine

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/bindgen"
	"github.com/wippyai/wbg-runtime/errors"
)

// HostFunc is a Go function exported to modules under Namespace#Name.
//
// Handler has the shape
//
//	func([context.Context,] [*bindgen.Env,] params...) ([result,] [error])
//
// where params and result are uint32, int32, bool, uint64, int64, float32,
// float64 or types derived from them (resource.Handle). The Env is taken
// from the call context.
//
// A returned error traps the module call unless Catching is set, in which
// case non-fatal errors are stored in the module's exception register and
// the import returns zero results.
type HostFunc struct {
	Handler   any
	Namespace string
	Name      string
	Catching  bool
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	envType   = reflect.TypeOf((*bindgen.Env)(nil))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// compiledHostFunc is a HostFunc lowered to a wazero GoModuleFunc.
type compiledHostFunc struct {
	fn      api.GoModuleFunc
	params  []api.ValueType
	results []api.ValueType
}

func valueType(t reflect.Type) (api.ValueType, bool) {
	switch t.Kind() {
	case reflect.Uint32, reflect.Int32, reflect.Bool:
		return api.ValueTypeI32, true
	case reflect.Uint64, reflect.Int64:
		return api.ValueTypeI64, true
	case reflect.Float32:
		return api.ValueTypeF32, true
	case reflect.Float64:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func decodeValue(t reflect.Type, raw uint64) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Uint32:
		v.SetUint(uint64(api.DecodeU32(raw)))
	case reflect.Int32:
		v.SetInt(int64(api.DecodeI32(raw)))
	case reflect.Bool:
		v.SetBool(api.DecodeU32(raw) != 0)
	case reflect.Uint64:
		v.SetUint(raw)
	case reflect.Int64:
		v.SetInt(int64(raw))
	case reflect.Float32:
		v.SetFloat(float64(api.DecodeF32(raw)))
	case reflect.Float64:
		v.SetFloat(api.DecodeF64(raw))
	}
	return v
}

func encodeValue(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Uint32:
		return api.EncodeU32(uint32(v.Uint()))
	case reflect.Int32:
		return api.EncodeI32(int32(v.Int()))
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Uint64:
		return v.Uint()
	case reflect.Int64:
		return api.EncodeI64(v.Int())
	case reflect.Float32:
		return api.EncodeF32(float32(v.Float()))
	case reflect.Float64:
		return api.EncodeF64(v.Float())
	}
	return 0
}

// compile validates the handler and builds the module function.
func (h HostFunc) compile() (*compiledHostFunc, error) {
	rv := reflect.ValueOf(h.Handler)
	if rv.Kind() != reflect.Func {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", h.Handler)).
			Detail("handler for %s#%s must be a function", h.Namespace, h.Name).
			Build()
	}
	rt := rv.Type()

	pos := 0
	withCtx := false
	withEnv := false
	if pos < rt.NumIn() && rt.In(pos) == ctxType {
		withCtx = true
		pos++
	}
	if pos < rt.NumIn() && rt.In(pos) == envType {
		withEnv = true
		pos++
	}

	paramTypes := make([]reflect.Type, 0, rt.NumIn()-pos)
	params := make([]api.ValueType, 0, rt.NumIn()-pos)
	for i := pos; i < rt.NumIn(); i++ {
		vt, ok := valueType(rt.In(i))
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseHost, rt.In(i).String(), "core value")
		}
		paramTypes = append(paramTypes, rt.In(i))
		params = append(params, vt)
	}

	var results []api.ValueType
	hasErr := false
	switch rt.NumOut() {
	case 0:
	case 1:
		if rt.Out(0) == errorType {
			hasErr = true
			break
		}
		vt, ok := valueType(rt.Out(0))
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseHost, rt.Out(0).String(), "core value")
		}
		results = []api.ValueType{vt}
	case 2:
		if rt.Out(1) != errorType {
			return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				GoType(rt.String()).
				Detail("second result must be error").
				Build()
		}
		vt, ok := valueType(rt.Out(0))
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseHost, rt.Out(0).String(), "core value")
		}
		results = []api.ValueType{vt}
		hasErr = true
	default:
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(rt.String()).
			Detail("at most one result and an error are supported").
			Build()
	}

	name := h.Namespace + "#" + h.Name
	catching := h.Catching
	nIn := rt.NumIn()

	fn := func(ctx context.Context, _ api.Module, stack []uint64) {
		env := bindgen.FromContext(ctx)
		if env == nil {
			panic(errors.NotInitialized(errors.PhaseHost, "bindgen environment for "+name))
		}
		if err := env.Err(); err != nil {
			panic(err)
		}

		args := make([]reflect.Value, 0, nIn)
		if withCtx {
			args = append(args, reflect.ValueOf(ctx))
		}
		if withEnv {
			args = append(args, reflect.ValueOf(env))
		}
		for i, t := range paramTypes {
			args = append(args, decodeValue(t, stack[i]))
		}

		out := rv.Call(args)

		if hasErr {
			if errv := out[len(out)-1]; !errv.IsNil() {
				err := errv.Interface().(error)
				if catching {
					err = env.Guard(ctx, err)
				}
				if err != nil {
					Logger().Debug("host call trapped", zap.String("import", name), zap.Error(err))
					panic(err)
				}
				for i := range results {
					stack[i] = 0
				}
				return
			}
		}
		if len(results) > 0 {
			stack[0] = encodeValue(out[0])
		}
	}

	return &compiledHostFunc{fn: fn, params: params, results: results}, nil
}

// Signature reports the core signature a handler compiles to.
func (h HostFunc) Signature() (params, results []api.ValueType, err error) {
	c, err := h.compile()
	if err != nil {
		return nil, nil, err
	}
	return c.params, c.results, nil
}
