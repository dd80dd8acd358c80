package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/errors"
)

// Engine owns a wazero runtime and the host modules defined in it.
type Engine struct {
	runtime wazero.Runtime
	hosts   map[string]map[string]*compiledHostFunc
	mu      sync.Mutex
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CloseOnContextDone aborts running module code when the call context
	// is canceled.
	CloseOnContextDone bool
}

// New creates an engine. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}
	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		hosts:   make(map[string]map[string]*compiledHostFunc),
	}, nil
}

// DefineHostModule instantiates a host module exporting funcs. Each
// namespace can be defined once per engine.
func (e *Engine) DefineHostModule(ctx context.Context, namespace string, funcs []HostFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.hosts[namespace]; ok {
		return errors.New(errors.PhaseLinking, errors.KindRegistration).
			Detail("host module %q already defined", namespace).
			Build()
	}

	compiled := make(map[string]*compiledHostFunc, len(funcs))
	builder := e.runtime.NewHostModuleBuilder(namespace)
	for _, hf := range funcs {
		c, err := hf.compile()
		if err != nil {
			return errors.Registration(errors.PhaseHost, namespace, hf.Name, err)
		}
		compiled[hf.Name] = c
		builder.NewFunctionBuilder().
			WithGoModuleFunction(c.fn, c.params, c.results).
			WithName(hf.Name).
			Export(hf.Name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Registration(errors.PhaseLinking, namespace, "", err)
	}
	e.hosts[namespace] = compiled

	Logger().Debug("host module defined",
		zap.String("namespace", namespace),
		zap.Int("functions", len(funcs)))
	return nil
}

// HasHostModule reports whether namespace was defined.
func (e *Engine) HasHostModule(namespace string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.hosts[namespace]
	return ok
}

// Compile compiles a module and checks its imports against the defined
// host modules. Unresolved imports are reported together in an
// errors.MissingImportsError.
func (e *Engine) Compile(ctx context.Context, wasmBytes []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	if err := e.checkImports(compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	return &Module{engine: e, compiled: compiled}, nil
}

func (e *Engine) checkImports(compiled wazero.CompiledModule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var missing []string
	for _, def := range compiled.ImportedFunctions() {
		ns, name, _ := def.Import()
		host, ok := e.hosts[ns]
		if !ok {
			missing = append(missing, ns+"#"+name)
			continue
		}
		fn, ok := host[name]
		if !ok {
			missing = append(missing, ns+"#"+name)
			continue
		}
		if !sameTypes(fn.params, def.ParamTypes()) || !sameTypes(fn.results, def.ResultTypes()) {
			return errors.New(errors.PhaseLinking, errors.KindTypeMismatch).
				Detail("import %s#%s: module expects %s, host provides %s",
					ns, name, signatureString(def.ParamTypes(), def.ResultTypes()),
					signatureString(fn.params, fn.results)).
				Build()
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.NewMissingImportsError(missing)
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signatureString(params, results []api.ValueType) string {
	s := "("
	for i, p := range params {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(p)
	}
	s += ")"
	if len(results) > 0 {
		s += " -> " + api.ValueTypeName(results[0])
	}
	return s
}

// Close closes the wazero runtime and every module in it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
