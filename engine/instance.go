package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	wbgruntime "github.com/wippyai/wbg-runtime"
	"github.com/wippyai/wbg-runtime/bindgen"
	"github.com/wippyai/wbg-runtime/errors"
)

// Export names of the bindgen module ABI.
const (
	ExportMemory            = "memory"
	ExportMalloc            = "__wbindgen_malloc"
	ExportRealloc           = "__wbindgen_realloc"
	ExportFree              = "__wbindgen_free"
	ExportExnStore          = "__wbindgen_exn_store"
	ExportStart             = "__wbindgen_start"
	ExportAddToStackPointer = "__wbindgen_add_to_stack_pointer"
	ExportInvokeDtor        = "__wbindgen_invoke_dtor"
)

// RequiredExports lists the exports every bindgen module must provide.
var RequiredExports = []string{ExportMemory, ExportMalloc, ExportRealloc, ExportFree, ExportExnStore}

// Instance is a running module. It implements bindgen.Exports.
// Not safe for concurrent use.
type Instance struct {
	mod   api.Module
	funcs map[string]api.Function
	// stack is reused by the fixed-arity ABI exports, none of which
	// re-enter the host.
	stack []uint64
}

var _ bindgen.Exports = (*Instance)(nil)

var _ wbgruntime.Memory = (api.Memory)(nil)

func newInstance(mod api.Module) *Instance {
	return &Instance{
		mod:   mod,
		funcs: make(map[string]api.Function),
		stack: make([]uint64, 4),
	}
}

// Module returns the underlying wazero module.
func (i *Instance) Module() api.Module {
	return i.mod
}

// Memory returns the exported linear memory, or nil.
func (i *Instance) Memory() wbgruntime.Memory {
	mem := i.mod.ExportedMemory(ExportMemory)
	if mem == nil {
		return nil
	}
	return mem
}

// Function returns the exported function name.
func (i *Instance) Function(name string) (api.Function, error) {
	if fn, ok := i.funcs[name]; ok {
		return fn, nil
	}
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.MissingExport(name)
	}
	i.funcs[name] = fn
	return fn, nil
}

// HasFunction reports whether name is an exported function.
func (i *Instance) HasFunction(name string) bool {
	_, err := i.Function(name)
	return err == nil
}

// Call invokes export name with raw core values.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn, err := i.Function(name)
	if err != nil {
		return nil, err
	}
	return fn.Call(ctx, args...)
}

func (i *Instance) callStack(ctx context.Context, name string, n int) ([]uint64, error) {
	fn, err := i.Function(name)
	if err != nil {
		return nil, err
	}
	if err := fn.CallWithStack(ctx, i.stack); err != nil {
		return nil, err
	}
	return i.stack[:n], nil
}

func (i *Instance) Malloc(ctx context.Context, size uint32) (uint32, error) {
	i.stack[0] = api.EncodeU32(size)
	res, err := i.callStack(ctx, ExportMalloc, 1)
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

func (i *Instance) Realloc(ctx context.Context, ptr, oldSize, newSize uint32) (uint32, error) {
	i.stack[0] = api.EncodeU32(ptr)
	i.stack[1] = api.EncodeU32(oldSize)
	i.stack[2] = api.EncodeU32(newSize)
	res, err := i.callStack(ctx, ExportRealloc, 1)
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

func (i *Instance) Free(ctx context.Context, ptr, size uint32) error {
	i.stack[0] = api.EncodeU32(ptr)
	i.stack[1] = api.EncodeU32(size)
	_, err := i.callStack(ctx, ExportFree, 0)
	return err
}

func (i *Instance) ExnStore(ctx context.Context, idx uint32) error {
	i.stack[0] = api.EncodeU32(idx)
	_, err := i.callStack(ctx, ExportExnStore, 0)
	return err
}

func (i *Instance) AddToStackPointer(ctx context.Context, delta int32) (uint32, error) {
	i.stack[0] = api.EncodeI32(delta)
	res, err := i.callStack(ctx, ExportAddToStackPointer, 1)
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

// InvokeDtor runs a closure destructor. Destructors may call back into the
// host, so the shared stack buffer is not used.
func (i *Instance) InvokeDtor(ctx context.Context, dtor, a, b uint32) error {
	_, err := i.Call(ctx, ExportInvokeDtor, api.EncodeU32(dtor), api.EncodeU32(a), api.EncodeU32(b))
	return err
}

// Invoke calls a closure thunk export.
func (i *Instance) Invoke(ctx context.Context, export string, args []uint64) ([]uint64, error) {
	return i.Call(ctx, export, args...)
}

// Close closes the module instance.
func (i *Instance) Close(ctx context.Context) error {
	i.funcs = nil
	return i.mod.Close(ctx)
}
