// Package guesttest provides an in-process stand-in for a compiled module:
// a growable linear memory and Go implementations of the allocator and
// support exports. Growth reallocates the backing buffer so aliasing
// slices go stale the way they do with a real engine.
package guesttest

import (
	"context"
	"fmt"
)

const (
	PageSize = 65536

	// StackTop is where the shadow stack starts; it grows down from here.
	StackTop = 1024
)

// Memory is a growable byte buffer implementing wbgruntime.Memory.
type Memory struct {
	buf []byte
}

// NewMemory returns a memory of the given number of pages.
func NewMemory(pages uint32) *Memory {
	return &Memory{buf: make([]byte, pages*PageSize)}
}

func (m *Memory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset:end:end], true
}

func (m *Memory) Write(offset uint32, data []byte) bool {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:], data)
	return true
}

func (m *Memory) Size() uint32 {
	return uint32(len(m.buf))
}

// Grow adds pages, moving the buffer, and returns the previous page count.
func (m *Memory) Grow(pages uint32) uint32 {
	prev := uint32(len(m.buf) / PageSize)
	buf := make([]byte, len(m.buf)+int(pages)*PageSize)
	copy(buf, m.buf)
	m.buf = buf
	return prev
}

// InvokeCall records one call to a thunk export.
type InvokeCall struct {
	Export string
	Args   []uint64
}

// DtorCall records one destructor invocation.
type DtorCall struct {
	Dtor, A, B uint32
}

// Guest implements the allocator and support exports against a Memory.
// Malloc bumps; Realloc keeps the block when shrinking and otherwise moves it.
type Guest struct {
	Mem *Memory

	// OnInvoke handles thunk exports. Nil makes every invocation return no results.
	OnInvoke func(ctx context.Context, export string, args []uint64) ([]uint64, error)

	// FailMalloc makes the next allocator call fail.
	FailMalloc bool

	Exceptions []uint32
	Dtors      []DtorCall
	Invokes    []InvokeCall
	Mallocs    int
	Reallocs   int
	Frees      int

	next uint32
	sp   uint32
}

// New returns a guest with one page of memory.
func New() *Guest {
	return &Guest{Mem: NewMemory(1), next: StackTop, sp: StackTop}
}

func (g *Guest) alloc(size uint32) (uint32, error) {
	if g.FailMalloc {
		g.FailMalloc = false
		return 0, fmt.Errorf("out of memory")
	}
	ptr := (g.next + 7) &^ 7
	end := ptr + size
	if end > g.Mem.Size() {
		need := (end - g.Mem.Size() + PageSize - 1) / PageSize
		g.Mem.Grow(need)
	}
	g.next = end
	return ptr, nil
}

func (g *Guest) Malloc(_ context.Context, size uint32) (uint32, error) {
	g.Mallocs++
	return g.alloc(size)
}

func (g *Guest) Realloc(_ context.Context, ptr, oldSize, newSize uint32) (uint32, error) {
	g.Reallocs++
	if newSize <= oldSize {
		return ptr, nil
	}
	np, err := g.alloc(newSize)
	if err != nil {
		return 0, err
	}
	old, _ := g.Mem.Read(ptr, oldSize)
	g.Mem.Write(np, old)
	return np, nil
}

func (g *Guest) Free(_ context.Context, _, _ uint32) error {
	g.Frees++
	return nil
}

func (g *Guest) ExnStore(_ context.Context, idx uint32) error {
	g.Exceptions = append(g.Exceptions, idx)
	return nil
}

func (g *Guest) InvokeDtor(_ context.Context, dtor, a, b uint32) error {
	g.Dtors = append(g.Dtors, DtorCall{Dtor: dtor, A: a, B: b})
	return nil
}

func (g *Guest) Invoke(ctx context.Context, export string, args []uint64) ([]uint64, error) {
	g.Invokes = append(g.Invokes, InvokeCall{Export: export, Args: append([]uint64(nil), args...)})
	if g.OnInvoke == nil {
		return nil, nil
	}
	return g.OnInvoke(ctx, export, args)
}

func (g *Guest) AddToStackPointer(_ context.Context, delta int32) (uint32, error) {
	g.sp = uint32(int32(g.sp) + delta)
	return g.sp, nil
}

// WriteString copies s into freshly allocated memory.
func (g *Guest) WriteString(s string) (ptr, n uint32) {
	ptr, _ = g.alloc(uint32(len(s)))
	g.Mem.Write(ptr, []byte(s))
	return ptr, uint32(len(s))
}

// ReadString reads n bytes at ptr.
func (g *Guest) ReadString(ptr, n uint32) string {
	b, _ := g.Mem.Read(ptr, n)
	return string(b)
}
