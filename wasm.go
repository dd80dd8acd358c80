package wbgruntime

import "context"

// Memory is the linear memory of a module instance.
// wazero's api.Memory satisfies it. Slices returned by Read alias the
// underlying buffer and are only valid until the memory grows.
type Memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, data []byte) bool
	Size() uint32
}

// Allocator is the module-exported allocator (__wbindgen_malloc,
// __wbindgen_realloc, __wbindgen_free). Any call may grow memory.
type Allocator interface {
	Malloc(ctx context.Context, size uint32) (uint32, error)
	Realloc(ctx context.Context, ptr, oldSize, newSize uint32) (uint32, error)
	Free(ctx context.Context, ptr, size uint32) error
}
