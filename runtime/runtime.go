package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/bindgen"
	"github.com/wippyai/wbg-runtime/closure"
	"github.com/wippyai/wbg-runtime/engine"
	"github.com/wippyai/wbg-runtime/errors"
)

// Config configures a Runtime.
type Config struct {
	// Logger receives runtime and host diagnostics. Nil disables logging.
	Logger *zap.Logger

	// Signatures resolves closure signature ids. Nil uses the built-in set.
	Signatures *closure.Registry

	// OnFatal is called once per instance with the message of an
	// unrecoverable module error.
	OnFatal func(msg string)

	// MemoryLimitPages caps linear memory per instance (64KB pages).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// TraceHandles logs every handle allocation and release at debug level.
	TraceHandles bool
}

type Runtime struct {
	engine *engine.Engine
	hosts  *HostRegistry
	cfg    Config
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates a runtime with the core __wbindgen intrinsics registered.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	eng, err := engine.New(ctx, &engine.Config{
		MemoryLimitPages:   cfg.MemoryLimitPages,
		CloseOnContextDone: true,
	})
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runtime{
		engine: eng,
		hosts:  NewHostRegistry(),
		cfg:    cfg,
		logger: logger,
	}
	if err := r.RegisterHost(bindgen.Intrinsics{}); err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}
	return r, nil
}

// Close releases all runtime resources.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// RegisterHost registers h's functions under its namespace.
// Must be called BEFORE loading modules that import these functions.
// Method names are converted to wbg import names
// (LocalStorageGet -> __wbg_local_storage_get).
func (r *Runtime) RegisterHost(h Host) error {
	return r.hosts.RegisterHost(h)
}

func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	return r.hosts.RegisterFunc(namespace, name, fn)
}

// RegisterFuncCatching registers fn as a catching import.
func (r *Runtime) RegisterFuncCatching(namespace, name string, fn any) error {
	return r.hosts.RegisterFuncCatching(namespace, name, fn)
}

func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *zap.Logger {
	return r.logger
}

// Load compiles a bindgen module. Registered hosts are bound first; imports
// nothing provides are reported in an errors.MissingImportsError and a
// missing required export fails with KindMissingExport.
func (r *Runtime) Load(ctx context.Context, wasm []byte) (*Module, error) {
	r.mu.Lock()
	err := r.hosts.Bind(ctx, r.engine)
	r.mu.Unlock()
	if err != nil {
		return nil, errors.Load("bind hosts", err)
	}

	compiled, err := r.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, err
	}
	if err := compiled.RequireExports(engine.RequiredExports...); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	r.logger.Debug("module loaded",
		zap.Int("imports", len(compiled.ImportNames())),
		zap.Int("exports", len(compiled.ExportNames())))

	return &Module{runtime: r, compiled: compiled}, nil
}
