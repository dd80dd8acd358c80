package runtime

import (
	"context"

	"github.com/wippyai/wbg-runtime/bindgen"
	"github.com/wippyai/wbg-runtime/engine"
	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/eventloop"
)

type Module struct {
	runtime  *Runtime
	compiled *engine.Module
}

// Instantiate creates an instance with its own handle table, memory views
// and event loop, then runs __wbindgen_start when the module exports it.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	inst, err := m.compiled.Instantiate(ctx)
	if err != nil {
		return nil, err
	}

	cfg := m.runtime.cfg
	logger := m.runtime.logger
	env := bindgen.New(inst.Memory(), inst, eventloop.New(logger), bindgen.Config{
		Logger:       logger,
		Signatures:   cfg.Signatures,
		OnFatal:      cfg.OnFatal,
		TraceHandles: cfg.TraceHandles,
	})

	i := &Instance{
		module: m,
		inst:   inst,
		env:    env,
	}

	if inst.HasFunction(engine.ExportStart) {
		if _, err := i.CallRaw(ctx, engine.ExportStart); err != nil {
			_ = i.Close(ctx)
			return nil, errors.Instantiation(err)
		}
	}
	return i, nil
}

type Export struct {
	Name string
}

// Exports lists the module's exported functions.
func (m *Module) Exports() []Export {
	names := m.compiled.ExportNames()
	exports := make([]Export, len(names))
	for i, name := range names {
		exports[i] = Export{Name: name}
	}
	return exports
}

// Imports lists the module's imports as "module#name".
func (m *Module) Imports() []string {
	return m.compiled.ImportNames()
}

// Close releases the compiled code. Instances must be closed first.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
