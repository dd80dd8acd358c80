// Package memory caches typed views over a module's linear memory.
//
// A view is a Go slice aliasing the memory buffer. Growing the memory may
// move the buffer, so every cached view is dropped whenever the module might
// have grown it: after each allocator call and after each call into the
// module. The generation counter lets zero-copy byte views detect that they
// outlived their buffer.
package memory

import (
	"encoding/binary"
	"math"

	wbgruntime "github.com/wippyai/wbg-runtime"
	"github.com/wippyai/wbg-runtime/errors"
)

// Views caches byte and typed views over a Memory.
type Views struct {
	mem  wbgruntime.Memory
	u8   []byte
	gen  uint64
	size uint32
}

// New returns views over mem.
func New(mem wbgruntime.Memory) *Views {
	return &Views{mem: mem}
}

// Memory returns the underlying memory.
func (v *Views) Memory() wbgruntime.Memory {
	return v.mem
}

// Generation returns the current view generation.
func (v *Views) Generation() uint64 {
	return v.gen
}

// Invalidate drops cached views and starts a new generation.
func (v *Views) Invalidate() {
	v.gen++
	v.u8 = nil
}

// Uint8 returns a byte view over the whole memory. The view is recreated
// when the memory size changed since it was cached.
func (v *Views) Uint8() []byte {
	size := v.mem.Size()
	if v.u8 == nil || size != v.size {
		buf, ok := v.mem.Read(0, size)
		if !ok {
			return nil
		}
		v.u8 = buf
		v.size = size
	}
	return v.u8
}

// Range returns the bytes [ptr, ptr+n) of the current byte view.
func (v *Views) Range(ptr, n uint32) ([]byte, error) {
	buf := v.Uint8()
	end := uint64(ptr) + uint64(n)
	if end > uint64(len(buf)) {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, ptr, n, uint32(len(buf)))
	}
	return buf[ptr:end:end], nil
}

// Subarray returns a zero-copy view of [ptr, ptr+n) bound to the current
// generation.
func (v *Views) Subarray(ptr, n uint32) (ByteView, error) {
	if _, err := v.Range(ptr, n); err != nil {
		return ByteView{}, err
	}
	return ByteView{views: v, ptr: ptr, n: n, gen: v.gen}, nil
}

// Int32 returns an i32 view. Index i addresses bytes [4i, 4i+4).
func (v *Views) Int32() Int32View {
	return Int32View{b: v.Uint8()}
}

// Float32 returns an f32 view. Index i addresses bytes [4i, 4i+4).
func (v *Views) Float32() Float32View {
	return Float32View{b: v.Uint8()}
}

// Float64 returns an f64 view. Index i addresses bytes [8i, 8i+8).
func (v *Views) Float64() Float64View {
	return Float64View{b: v.Uint8()}
}

// ByteView is a zero-copy window into linear memory. It becomes stale once
// the views it was taken from are invalidated.
type ByteView struct {
	views *Views
	ptr   uint32
	n     uint32
	gen   uint64
}

// Len returns the view length in bytes.
func (b ByteView) Len() int {
	return int(b.n)
}

// Ptr returns the start address of the view.
func (b ByteView) Ptr() uint32 {
	return b.ptr
}

// Stale reports whether the memory may have moved since the view was taken.
func (b ByteView) Stale() bool {
	return b.views == nil || b.views.gen != b.gen
}

// Bytes returns the aliased bytes, or a stale-view error.
func (b ByteView) Bytes() ([]byte, error) {
	if b.views == nil {
		return nil, nil
	}
	if b.views.gen != b.gen {
		return nil, errors.StaleView(b.ptr, b.gen, b.views.gen)
	}
	return b.views.Range(b.ptr, b.n)
}

// Int32View reads and writes little-endian i32 elements.
type Int32View struct {
	b []byte
}

func (v Int32View) Len() int { return len(v.b) / 4 }

func (v Int32View) Get(i uint32) int32 {
	return int32(binary.LittleEndian.Uint32(v.b[i*4:]))
}

func (v Int32View) Set(i uint32, x int32) {
	binary.LittleEndian.PutUint32(v.b[i*4:], uint32(x))
}

// Float32View reads and writes little-endian f32 elements.
type Float32View struct {
	b []byte
}

func (v Float32View) Len() int { return len(v.b) / 4 }

func (v Float32View) Get(i uint32) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(v.b[i*4:]))
}

func (v Float32View) Set(i uint32, x float32) {
	binary.LittleEndian.PutUint32(v.b[i*4:], math.Float32bits(x))
}

// Float64View reads and writes little-endian f64 elements.
type Float64View struct {
	b []byte
}

func (v Float64View) Len() int { return len(v.b) / 8 }

func (v Float64View) Get(i uint32) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(v.b[i*8:]))
}

func (v Float64View) Set(i uint32, x float64) {
	binary.LittleEndian.PutUint64(v.b[i*8:], math.Float64bits(x))
}
