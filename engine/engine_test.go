package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/wippyai/wbg-runtime/bindgen"
	werrors "github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/internal/wasmgen"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/value"
)

var (
	sigPtrLen       = wasmgen.Sig(wasmgen.Params(wasmgen.I32, wasmgen.I32), nil)
	sigPtrLenHandle = wasmgen.Sig(wasmgen.Params(wasmgen.I32, wasmgen.I32), wasmgen.Results(wasmgen.I32))
)

func intrinsicFuncs() []HostFunc {
	var funcs []HostFunc
	for name, h := range (bindgen.Intrinsics{}).Register() {
		funcs = append(funcs, HostFunc{Namespace: bindgen.Namespace, Name: name, Handler: h})
	}
	return funcs
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, &Config{MemoryLimitPages: 256})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	if err := e.DefineHostModule(ctx, bindgen.Namespace, intrinsicFuncs()); err != nil {
		t.Fatalf("DefineHostModule: %v", err)
	}
	return e
}

// instantiate compiles g and binds a fresh Env to the instance.
func instantiate(t *testing.T, e *Engine, g *wasmgen.Guest) (*Instance, *bindgen.Env, context.Context) {
	t.Helper()
	ctx := context.Background()
	mod, err := e.Compile(ctx, g.Encode())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := mod.RequireExports(RequiredExports...); err != nil {
		t.Fatalf("RequireExports: %v", err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	t.Cleanup(func() { inst.Close(ctx) })
	env := bindgen.New(inst.Memory(), inst, nil, bindgen.Config{})
	return inst, env, bindgen.WithEnv(ctx, env)
}

func TestEngine_DefineHostModuleTwice(t *testing.T) {
	e := newTestEngine(t)
	if !e.HasHostModule(bindgen.Namespace) {
		t.Fatal("wbg not defined")
	}
	err := e.DefineHostModule(context.Background(), bindgen.Namespace, nil)
	if !errors.Is(err, &werrors.Error{Phase: werrors.PhaseLinking, Kind: werrors.KindRegistration}) {
		t.Errorf("err = %v, want registration error", err)
	}
}

func TestEngine_CompileReportsMissingImports(t *testing.T) {
	e := newTestEngine(t)
	g := wasmgen.NewGuest(
		wasmgen.Import{Module: "wbg", Name: "__wbg_alert_0123456789abcdef", Type: sigPtrLen},
		wasmgen.Import{Module: "env", Name: "now", Type: wasmgen.Sig(nil, wasmgen.Results(wasmgen.F64))},
		wasmgen.Import{Module: "wbg", Name: "__wbindgen_string_new", Type: sigPtrLenHandle},
	)
	_, err := e.Compile(context.Background(), g.Encode())
	var missing *werrors.MissingImportsError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingImportsError", err)
	}
	if len(missing.Imports) != 2 {
		t.Errorf("missing = %+v, want 2 entries", missing.Imports)
	}
}

func TestEngine_CompileRejectsSignatureMismatch(t *testing.T) {
	e := newTestEngine(t)
	g := wasmgen.NewGuest(wasmgen.Import{Module: "wbg", Name: "__wbindgen_string_new", Type: sigPtrLen})
	_, err := e.Compile(context.Background(), g.Encode())
	if !errors.Is(err, &werrors.Error{Phase: werrors.PhaseLinking, Kind: werrors.KindTypeMismatch}) {
		t.Errorf("err = %v, want linking type mismatch", err)
	}
}

func TestModule_RequireExports(t *testing.T) {
	e := newTestEngine(t)
	m := wasmgen.New()
	m.Memory(1, "memory")
	mod, err := e.Compile(context.Background(), m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	err = mod.RequireExports(RequiredExports...)
	if !errors.Is(err, &werrors.Error{Phase: werrors.PhaseLinking, Kind: werrors.KindMissingExport}) {
		t.Errorf("err = %v, want missing export", err)
	}

	bare := wasmgen.New()
	mod, _ = e.Compile(context.Background(), bare.Encode())
	if err := mod.RequireExports(ExportMemory); err == nil {
		t.Error("module without memory passed")
	}
}

func TestInstance_HostCallsSeeEnv(t *testing.T) {
	e := newTestEngine(t)
	g := wasmgen.NewGuest(wasmgen.Import{Module: "wbg", Name: "__wbindgen_string_new", Type: sigPtrLenHandle})
	g.Export("make_string", g.Func(sigPtrLenHandle, nil, wasmgen.NewCode().
		LocalGet(0).LocalGet(1).Call(g.Imported("__wbindgen_string_new"))))

	inst, env, ctx := instantiate(t, e, g)

	ptr, n, err := env.Strings.WriteString(ctx, "héllo wörld")
	if err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	res, err := inst.Call(ctx, "make_string", uint64(ptr), uint64(n))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	v, err := env.Heap.Get(resource.Handle(res[0]))
	if err != nil || v != "héllo wörld" {
		t.Errorf("heap value = %v, %v", v, err)
	}
	if resource.Handle(res[0]) != resource.FirstFree {
		t.Errorf("handle = %d, want %d", res[0], resource.FirstFree)
	}
}

func TestInstance_CallWithoutEnvTraps(t *testing.T) {
	e := newTestEngine(t)
	g := wasmgen.NewGuest(wasmgen.Import{Module: "wbg", Name: "__wbindgen_string_new", Type: sigPtrLenHandle})
	g.Export("make_string", g.Func(sigPtrLenHandle, nil, wasmgen.NewCode().
		LocalGet(0).LocalGet(1).Call(g.Imported("__wbindgen_string_new"))))
	inst, _, _ := instantiate(t, e, g)

	_, err := inst.Call(context.Background(), "make_string", 0, 0)
	if !errors.Is(err, &werrors.Error{Phase: werrors.PhaseHost, Kind: werrors.KindNotInitialized}) {
		t.Errorf("err = %v, want not initialized", err)
	}
}

func TestInstance_ThrowTraps(t *testing.T) {
	e := newTestEngine(t)
	g := wasmgen.NewGuest(wasmgen.Import{Module: "wbg", Name: "__wbindgen_throw", Type: sigPtrLen})
	g.Data(16, []byte("boom"))
	g.Export("fail", g.Func(wasmgen.Sig(nil, nil), nil, wasmgen.NewCode().
		I32Const(16).I32Const(4).Call(g.Imported("__wbindgen_throw"))))
	inst, _, ctx := instantiate(t, e, g)

	_, err := inst.Call(ctx, "fail")
	var werr *werrors.Error
	if !errors.As(err, &werr) {
		t.Fatalf("err = %v, want *errors.Error", err)
	}
	if werr.Kind != werrors.KindThrown || werr.Detail != "boom" {
		t.Errorf("trap = %+v", werr)
	}
}

func TestInstance_CatchingImportStoresException(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	denied := value.NewError(value.SecurityErrorName, "denied")
	err := e.DefineHostModule(ctx, "test", []HostFunc{{
		Namespace: "test",
		Name:      "guarded",
		Catching:  true,
		Handler: func(context.Context, *bindgen.Env) (uint32, error) {
			return 99, denied
		},
	}})
	if err != nil {
		t.Fatal(err)
	}

	g := wasmgen.NewGuest(wasmgen.Import{Module: "test", Name: "guarded", Type: wasmgen.Sig(nil, wasmgen.Results(wasmgen.I32))})
	g.Export("try", g.Func(wasmgen.Sig(nil, wasmgen.Results(wasmgen.I32)), nil, wasmgen.NewCode().
		Call(g.Imported("guarded"))))
	inst, env, cctx := instantiate(t, e, g)

	res, err := inst.Call(cctx, "try")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res[0] != 0 {
		t.Errorf("result = %d, want zero after exception", res[0])
	}
	exn := resource.Handle(inst.Module().ExportedGlobal("exn").Get())
	v, err := env.Heap.Get(exn)
	if err != nil || v != denied {
		t.Errorf("exception = %v, %v", v, err)
	}
}

func TestInstance_FatalEnvRefusesHostCalls(t *testing.T) {
	e := newTestEngine(t)
	g := wasmgen.NewGuest(wasmgen.Import{Module: "wbg", Name: "__wbindgen_number_new", Type: wasmgen.Sig(wasmgen.Params(wasmgen.F64), wasmgen.Results(wasmgen.I32))})
	g.Export("num", g.Func(wasmgen.Sig(nil, wasmgen.Results(wasmgen.I32)), nil, wasmgen.NewCode().
		F64Const(2.5).Call(g.Imported("__wbindgen_number_new"))))
	inst, env, ctx := instantiate(t, e, g)

	res, err := inst.Call(ctx, "num")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := env.Heap.Get(resource.Handle(res[0])); v != 2.5 {
		t.Errorf("number = %v", v)
	}

	env.Fatal("renderer lost")
	if _, err := inst.Call(ctx, "num"); !errors.Is(err, &werrors.Error{Phase: werrors.PhaseModule, Kind: werrors.KindFatal}) {
		t.Errorf("err = %v, want fatal", err)
	}
}

func TestInstance_Allocator(t *testing.T) {
	e := newTestEngine(t)
	inst, _, ctx := instantiate(t, e, wasmgen.NewGuest())

	p, err := inst.Malloc(ctx, 12)
	if err != nil || p != wasmgen.GuestHeapBase {
		t.Fatalf("Malloc = %d, %v", p, err)
	}
	inst.Memory().Write(p, []byte("abcdefghijkl"))
	q, err := inst.Realloc(ctx, p, 12, 3)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := inst.Memory().Read(q, 3); string(b) != "abc" {
		t.Errorf("realloc = %q", b)
	}
	if err := inst.Free(ctx, q, 3); err != nil {
		t.Error(err)
	}
	sp, err := inst.AddToStackPointer(ctx, -16)
	if err != nil || sp != wasmgen.GuestStackTop-16 {
		t.Errorf("AddToStackPointer = %d, %v", sp, err)
	}
	if err := inst.InvokeDtor(ctx, 1, 2, 3); err != nil {
		t.Error(err)
	}
	if _, err := inst.Invoke(ctx, "__wbindgen_invoke_0", nil); err == nil {
		t.Error("missing thunk export should fail")
	}
}
