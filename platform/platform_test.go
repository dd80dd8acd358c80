package platform

import (
	"context"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wbg-runtime/bindgen"
	"github.com/wippyai/wbg-runtime/internal/wasmgen"
	"github.com/wippyai/wbg-runtime/platform/storage"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/runtime"
	"github.com/wippyai/wbg-runtime/value"
)

type progress struct {
	done, total float64
	hasTotal    bool
}

type recordingReporter struct {
	titles   []string
	progress []progress
	errors   []string
}

func (r *recordingReporter) SetProgressTitle(title string) { r.titles = append(r.titles, title) }
func (r *recordingReporter) SetProgress(done, total float64, hasTotal bool) {
	r.progress = append(r.progress, progress{done, total, hasTotal})
}
func (r *recordingReporter) ShowError(msg string) { r.errors = append(r.errors, msg) }

func wbg(name string, params, results []wasmgen.ValType) wasmgen.Import {
	return wasmgen.Import{Module: bindgen.Namespace, Name: name, Type: wasmgen.Sig(params, results)}
}

// platformGuest exports one function per import it exercises.
func platformGuest() *wasmgen.Guest {
	i32, f64 := wasmgen.I32, wasmgen.F64
	g := wasmgen.NewGuest(
		wbg("__wbg_date_now", nil, wasmgen.Results(f64)),
		wbg("__wbg_local_storage_set", wasmgen.Params(i32, i32, i32, i32), nil),
		wbg("__wbg_local_storage_get", wasmgen.Params(i32, i32, i32), nil),
		wbg("__wbg_get_random_values", wasmgen.Params(i32, i32), nil),
		wbg("__wbg_set_progress", wasmgen.Params(f64, i32, f64), nil),
		wbg("__wbg_show_error", wasmgen.Params(i32, i32), nil),
	)
	g.Export("now", g.Func(wasmgen.Sig(nil, wasmgen.Results(f64)), nil, wasmgen.NewCode().
		Call(g.Imported("__wbg_date_now"))))
	g.Export("save", g.Func(wasmgen.Sig(wasmgen.Params(i32, i32, i32, i32), nil), nil, wasmgen.NewCode().
		LocalGet(0).LocalGet(1).LocalGet(2).LocalGet(3).
		Call(g.Imported("__wbg_local_storage_set"))))
	g.Export("load", g.Func(wasmgen.Sig(wasmgen.Params(i32, i32, i32), nil), nil, wasmgen.NewCode().
		LocalGet(0).LocalGet(1).LocalGet(2).
		Call(g.Imported("__wbg_local_storage_get"))))
	g.Export("entropy", g.Func(wasmgen.Sig(wasmgen.Params(i32), nil), nil, wasmgen.NewCode().
		I32Const(4096).LocalGet(0).
		Call(g.Imported("__wbg_get_random_values"))))
	g.Export("progress", g.Func(wasmgen.Sig(nil, nil), nil, wasmgen.NewCode().
		F64Const(3).I32Const(1).F64Const(12).
		Call(g.Imported("__wbg_set_progress"))))
	g.Export("fail", g.Func(wasmgen.Sig(wasmgen.Params(i32, i32), nil), nil, wasmgen.NewCode().
		LocalGet(0).LocalGet(1).
		Call(g.Imported("__wbg_show_error"))))
	return g
}

type fixture struct {
	rt       *runtime.Runtime
	inst     *runtime.Instance
	services *Services
	rep      *recordingReporter
}

func start(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	rt, err := runtime.New(ctx, runtime.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })

	rep := &recordingReporter{}
	cfg.Reporter = rep
	services, err := Register(ctx, rt, cfg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { _ = services.Close() })

	mod, err := rt.Load(ctx, platformGuest().Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return &fixture{rt: rt, inst: inst, services: services, rep: rep}
}

// exception returns the value of the last stored exception.
func (f *fixture) exception(t *testing.T) any {
	t.Helper()
	idx, ok := f.inst.Global("exn")
	if !ok || idx == 0 {
		t.Fatal("no exception stored")
	}
	v, err := f.inst.Env().Heap.Get(resource.Handle(uint32(idx)))
	if err != nil {
		t.Fatalf("exception handle %d: %v", idx, err)
	}
	return v
}

func TestPlatform_ImportsResolve(t *testing.T) {
	ctx := context.Background()
	f := start(t, Config{})

	before := float64(time.Now().UnixMilli())
	res, err := f.inst.CallRaw(ctx, "now")
	if err != nil {
		t.Fatal(err)
	}
	if now := api.DecodeF64(res[0]); now < before || now > before+60_000 {
		t.Errorf("date_now = %v, want about %v", now, before)
	}

	if err := f.inst.Call(ctx, "save", "volume", "0.8"); err != nil {
		t.Fatal(err)
	}
	got, err := f.inst.CallString(ctx, "load", "volume")
	if err != nil || got != "0.8" {
		t.Fatalf("load = %q, %v", got, err)
	}
	if v, ok, _ := f.services.Store.Get(ctx, "volume"); !ok || v != "0.8" {
		t.Fatalf("store = %q, %v", v, ok)
	}

	if err := f.inst.Call(ctx, "entropy", 32); err != nil {
		t.Fatal(err)
	}
	if err := f.inst.Call(ctx, "progress"); err != nil {
		t.Fatal(err)
	}
	if len(f.rep.progress) != 1 || f.rep.progress[0] != (progress{3, 12, true}) {
		t.Fatalf("progress = %+v", f.rep.progress)
	}
	if err := f.inst.Call(ctx, "fail", "out of memory"); err != nil {
		t.Fatal(err)
	}
	if len(f.rep.errors) != 1 || f.rep.errors[0] != "out of memory" {
		t.Fatalf("errors = %q", f.rep.errors)
	}
}

func TestPlatform_CatchingImportsStoreExceptions(t *testing.T) {
	ctx := context.Background()
	f := start(t, Config{Storage: storage.Config{Disabled: true}})

	if err := f.inst.Call(ctx, "save", "k", "v"); err != nil {
		t.Fatalf("catching import trapped: %v", err)
	}
	if e, ok := f.exception(t).(*value.Error); !ok || e.Name != value.SecurityErrorName {
		t.Fatalf("exception = %v", f.exception(t))
	}

	if err := f.inst.Call(ctx, "entropy", 65537); err != nil {
		t.Fatalf("catching import trapped: %v", err)
	}
	if e, ok := f.exception(t).(*value.Error); !ok || e.Name != value.QuotaExceededErrorName {
		t.Fatalf("exception = %v", f.exception(t))
	}
}
