package bindgen

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	werrors "github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/internal/guesttest"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/value"
)

func newTestEnv(cfg Config) (*Env, *guesttest.Guest) {
	g := guesttest.New()
	return New(g.Mem, g, nil, cfg), g
}

func TestEnv_GuardStoresHostFailures(t *testing.T) {
	ctx := context.Background()
	env, g := newTestEnv(Config{})

	denied := value.NewError(value.SecurityErrorName, "denied")
	if err := env.Guard(ctx, denied); err != nil {
		t.Fatalf("Guard = %v", err)
	}
	if len(g.Exceptions) != 1 {
		t.Fatalf("exceptions stored = %d", len(g.Exceptions))
	}
	v, err := env.Heap.Get(resource.Handle(g.Exceptions[0]))
	if err != nil || v != denied {
		t.Fatalf("stored value = %v, %v", v, err)
	}

	plain := errors.New("disk full")
	env.Guard(ctx, plain)
	v, _ = env.Heap.Get(resource.Handle(g.Exceptions[1]))
	herr, ok := v.(*value.Error)
	if !ok || herr.Message != "disk full" || !errors.Is(herr, plain) {
		t.Fatalf("Go errors should become Error values, got %#v", v)
	}

	fatal := werrors.InvalidUTF8(werrors.PhaseMarshal, 0, nil)
	if err := env.Guard(ctx, fatal); err != fatal {
		t.Fatalf("fatal errors must trap, got %v", err)
	}
	if len(g.Exceptions) != 2 {
		t.Fatal("fatal errors must not reach the exception register")
	}
	if env.Guard(ctx, nil) != nil || len(g.Exceptions) != 2 {
		t.Fatal("nil error should be a no-op")
	}
}

func TestEnv_RethrowKeepsIdentity(t *testing.T) {
	env, _ := newTestEnv(Config{})
	obj := value.NewObject()
	h := env.Heap.Put(obj)

	err := env.Rethrow(h)
	var exc *werrors.Exception
	if !errors.As(err, &exc) || exc.Value != obj {
		t.Fatalf("Rethrow = %v", err)
	}
	if _, err := env.Heap.Get(h); err == nil {
		t.Fatal("rethrow should take the handle")
	}
	if HostValue(err) != obj {
		t.Fatal("HostValue should unwrap the rethrown value")
	}
}

func TestEnv_Fatal(t *testing.T) {
	var shown []string
	env, g := newTestEnv(Config{OnFatal: func(msg string) { shown = append(shown, msg) }})

	err := env.Fatal("index out of bounds")
	env.Fatal("second")
	if len(shown) != 1 || shown[0] != "index out of bounds" {
		t.Fatalf("fatal hook calls = %v", shown)
	}
	if !werrors.IsFatal(err) || env.Err() != err {
		t.Fatalf("Err = %v", env.Err())
	}
	if stopped, stopErr := env.Loop.Stopped(); !stopped || stopErr != err {
		t.Fatal("fatal should stop the loop")
	}
	if _, ierr := env.Invoke(context.Background(), "__wbindgen_invoke_0", nil); ierr != err {
		t.Fatalf("Invoke after fatal = %v", ierr)
	}
	if len(g.Invokes) != 0 {
		t.Fatal("module must not be entered after a fatal error")
	}
}

func TestEnv_WithRetSlot(t *testing.T) {
	ctx := context.Background()
	env, _ := newTestEnv(Config{})

	var slot uint32
	err := env.WithRetSlot(ctx, 16, func(retptr uint32) error {
		slot = retptr
		return env.Strings.WriteRetPair(retptr, 1, 2)
	})
	if err != nil {
		t.Fatal(err)
	}
	if slot != guesttest.StackTop-16 {
		t.Fatalf("slot = %d", slot)
	}
	sp, _ := env.Exports().AddToStackPointer(ctx, 0)
	if sp != guesttest.StackTop {
		t.Fatalf("stack pointer not restored: %d", sp)
	}
}

func TestEnv_TraceHandles(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	env, _ := newTestEnv(Config{Logger: zap.New(core), TraceHandles: true})

	h := env.Heap.Put("x")
	env.Heap.Drop(h)

	entries := logs.FilterMessage("handle").All()
	if len(entries) != 2 {
		t.Fatalf("trace entries = %d", len(entries))
	}
	if entries[1].ContextMap()["event"] != "dropped" {
		t.Fatalf("second entry = %v", entries[1].ContextMap())
	}
}

func TestContext(t *testing.T) {
	env, _ := newTestEnv(Config{})
	ctx := WithEnv(context.Background(), env)
	if FromContext(ctx) != env {
		t.Fatal("env not found in context")
	}
	if WithEnv(ctx, env) != ctx {
		t.Fatal("re-wrapping the same env should return ctx unchanged")
	}
	if FromContext(context.Background()) != nil {
		t.Fatal("empty context should carry no env")
	}
}
