package bindgen

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	wbgruntime "github.com/wippyai/wbg-runtime"
	"github.com/wippyai/wbg-runtime/closure"
	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/eventloop"
	"github.com/wippyai/wbg-runtime/memory"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/transcoder"
	"github.com/wippyai/wbg-runtime/value"
)

// Exports is the set of module exports the environment calls into.
type Exports interface {
	wbgruntime.Allocator
	ExnStore(ctx context.Context, idx uint32) error
	InvokeDtor(ctx context.Context, dtor, a, b uint32) error
	Invoke(ctx context.Context, export string, args []uint64) ([]uint64, error)
	AddToStackPointer(ctx context.Context, delta int32) (uint32, error)
}

// Config configures an Env.
type Config struct {
	// Logger receives handle traces and host diagnostics. Nil disables logging.
	Logger *zap.Logger
	// Signatures resolves closure signature ids. Nil uses the built-in set.
	Signatures *closure.Registry
	// OnFatal is called once with the message of an unrecoverable error.
	OnFatal func(msg string)
	// TraceHandles logs every handle allocation and release at debug level.
	TraceHandles bool
}

// Env is the per-instance state shared by all host functions.
// It is owned by the instance's loop goroutine.
type Env struct {
	Heap       *resource.Table
	Views      *memory.Views
	Strings    *transcoder.Transcoder
	Loop       *eventloop.Loop
	Signatures *closure.Registry

	exports Exports
	logger  *zap.Logger
	onFatal func(string)
	fatal   error
}

// New returns an environment over mem and exports.
func New(mem wbgruntime.Memory, exports Exports, loop *eventloop.Loop, cfg Config) *Env {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sigs := cfg.Signatures
	if sigs == nil {
		sigs = closure.NewRegistry()
	}
	if loop == nil {
		loop = eventloop.New(logger)
	}
	views := memory.New(mem)
	env := &Env{
		Heap:       resource.NewTable(),
		Views:      views,
		Strings:    transcoder.New(views, exports),
		Loop:       loop,
		Signatures: sigs,
		exports:    exports,
		logger:     logger,
		onFatal:    cfg.OnFatal,
	}
	if cfg.TraceHandles {
		env.Heap.Subscribe(resource.ObserverFunc(func(e resource.Event) {
			logger.Debug("handle",
				zap.Uint32("handle", uint32(e.Handle)),
				zap.Stringer("event", e.Type),
				zap.String("type", fmt.Sprintf("%T", e.Value)))
		}))
	}
	return env
}

// Logger returns the environment's logger.
func (e *Env) Logger() *zap.Logger {
	return e.logger
}

// Exports returns the module exports.
func (e *Env) Exports() Exports {
	return e.exports
}

// Invoke calls a closure thunk export. Implements closure.Invoker.
func (e *Env) Invoke(ctx context.Context, export string, args []uint64) ([]uint64, error) {
	if e.fatal != nil {
		return nil, e.fatal
	}
	defer e.Views.Invalidate()
	return e.exports.Invoke(WithEnv(ctx, e), export, args)
}

// InvokeDtor calls a closure destructor. Implements closure.Invoker.
func (e *Env) InvokeDtor(ctx context.Context, dtor, a, b uint32) error {
	defer e.Views.Invalidate()
	return e.exports.InvokeDtor(WithEnv(ctx, e), dtor, a, b)
}

// WithRetSlot reserves size bytes on the module's shadow stack for the
// duration of fn, which receives the slot address.
func (e *Env) WithRetSlot(ctx context.Context, size uint32, fn func(retptr uint32) error) error {
	retptr, err := e.exports.AddToStackPointer(ctx, -int32(size))
	e.Views.Invalidate()
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindAllocation, err, "reserve return slot")
	}
	defer func() {
		_, _ = e.exports.AddToStackPointer(ctx, int32(size))
		e.Views.Invalidate()
	}()
	return fn(retptr)
}

// Close releases all live handles.
func (e *Env) Close() error {
	return e.Heap.Close()
}

type ctxKeyEnv struct{}

// WithEnv returns a context carrying env and its event loop.
func WithEnv(ctx context.Context, env *Env) context.Context {
	if FromContext(ctx) == env {
		return ctx
	}
	ctx = context.WithValue(ctx, ctxKeyEnv{}, env)
	return eventloop.WithLoop(ctx, env.Loop)
}

// FromContext returns the Env carried by ctx, or nil.
func FromContext(ctx context.Context) *Env {
	if v := ctx.Value(ctxKeyEnv{}); v != nil {
		return v.(*Env)
	}
	return nil
}

// Callable returns the callable value at h. Undefined and null yield a nil
// Callable and no error.
func (e *Env) Callable(h resource.Handle) (value.Callable, error) {
	return callable(e, h)
}
