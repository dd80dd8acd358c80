package engine

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wbg-runtime/errors"
)

// Module is a compiled module. Safe for concurrent instantiation.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// ExportNames returns the exported function names, sorted.
func (m *Module) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ImportNames returns the imported functions as "module#name".
func (m *Module) ImportNames() []string {
	defs := m.compiled.ImportedFunctions()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		ns, name, _ := def.Import()
		names = append(names, ns+"#"+name)
	}
	return names
}

// HasExport reports whether the module exports function name.
func (m *Module) HasExport(name string) bool {
	_, ok := m.compiled.ExportedFunctions()[name]
	return ok
}

// RequireExports fails with KindMissingExport for the first function in
// names the module does not export. The memory export is checked under
// the name "memory".
func (m *Module) RequireExports(names ...string) error {
	funcs := m.compiled.ExportedFunctions()
	for _, name := range names {
		if name == "memory" {
			if _, ok := m.compiled.ExportedMemories()[name]; !ok {
				return errors.MissingExport(name)
			}
			continue
		}
		if _, ok := funcs[name]; !ok {
			return errors.MissingExport(name)
		}
	}
	return nil
}

// Instantiate creates an anonymous instance. The binary's start section
// runs here but no exported start function is called; __wbindgen_start is
// left to the caller so it runs with an environment attached to ctx.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return newInstance(mod), nil
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
