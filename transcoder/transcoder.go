package transcoder

import (
	"context"
	"unicode/utf8"

	wbgruntime "github.com/wippyai/wbg-runtime"
	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/memory"
)

// Transcoder reads and writes strings and arrays in a module's memory.
type Transcoder struct {
	views *memory.Views
	alloc wbgruntime.Allocator
}

// New returns a transcoder over views that allocates through alloc.
func New(views *memory.Views, alloc wbgruntime.Allocator) *Transcoder {
	return &Transcoder{views: views, alloc: alloc}
}

// Views returns the memory views the transcoder reads through.
func (t *Transcoder) Views() *memory.Views {
	return t.views
}

// Malloc allocates size bytes in the module.
func (t *Transcoder) Malloc(ctx context.Context, size uint32) (uint32, error) {
	ptr, err := t.alloc.Malloc(ctx, size)
	t.views.Invalidate()
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, size, err)
	}
	return ptr, nil
}

// Realloc resizes a module allocation.
func (t *Transcoder) Realloc(ctx context.Context, ptr, oldSize, newSize uint32) (uint32, error) {
	np, err := t.alloc.Realloc(ctx, ptr, oldSize, newSize)
	t.views.Invalidate()
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, newSize, err)
	}
	return np, nil
}

// Free releases a module allocation.
func (t *Transcoder) Free(ctx context.Context, ptr, size uint32) error {
	err := t.alloc.Free(ctx, ptr, size)
	t.views.Invalidate()
	if err != nil {
		return errors.Wrap(errors.PhaseMarshal, errors.KindAllocation, err, "free")
	}
	return nil
}

// ReadString decodes n bytes at ptr as UTF-8. A byte order mark is kept.
func (t *Transcoder) ReadString(ptr, n uint32) (string, error) {
	data, err := t.views.Range(ptr, n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseMarshal, ptr, data)
	}
	return string(data), nil
}

// WriteString stores s in module memory and returns its address and byte
// length. The caller owns the allocation.
func (t *Transcoder) WriteString(ctx context.Context, s string) (uint32, uint32, error) {
	n := uint32(len(s))
	ptr, err := t.Malloc(ctx, n)
	if err != nil {
		return 0, 0, err
	}
	buf, err := t.views.Range(ptr, n)
	if err != nil {
		return 0, 0, err
	}

	var offset uint32
	for ; offset < n; offset++ {
		c := s[offset]
		if c >= utf8.RuneSelf {
			break
		}
		buf[offset] = c
	}
	if offset == n {
		return ptr, n, nil
	}

	rest := s[offset:]
	size := offset + 3*uint32(len(rest))
	ptr, err = t.Realloc(ctx, ptr, n, size)
	if err != nil {
		return 0, 0, err
	}
	buf, err = t.views.Range(ptr+offset, size-offset)
	if err != nil {
		return 0, 0, err
	}
	total := offset + encodeInto(buf, rest)

	if total != size {
		ptr, err = t.Realloc(ctx, ptr, size, total)
		if err != nil {
			return 0, 0, err
		}
	}
	return ptr, total, nil
}

// encodeInto writes s as UTF-8 into dst, replacing each invalid byte with
// U+FFFD. dst must hold 3*len(s) bytes.
func encodeInto(dst []byte, s string) uint32 {
	if utf8.ValidString(s) {
		return uint32(copy(dst, s))
	}
	var w int
	for _, r := range s {
		w += utf8.EncodeRune(dst[w:], r)
	}
	return uint32(w)
}

// ReadBytes returns a zero-copy view of n bytes at ptr. The view goes stale
// at the next allocator or module call.
func (t *Transcoder) ReadBytes(ptr, n uint32) (memory.ByteView, error) {
	return t.views.Subarray(ptr, n)
}

// CopyBytes returns a copy of n bytes at ptr.
func (t *Transcoder) CopyBytes(ptr, n uint32) ([]byte, error) {
	data, err := t.views.Range(ptr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteBytes stores b in freshly allocated module memory.
func (t *Transcoder) WriteBytes(ctx context.Context, b []byte) (uint32, uint32, error) {
	n := uint32(len(b))
	ptr, err := t.Malloc(ctx, n)
	if err != nil {
		return 0, 0, err
	}
	buf, err := t.views.Range(ptr, n)
	if err != nil {
		return 0, 0, err
	}
	copy(buf, b)
	return ptr, n, nil
}

// CopyTo writes b at ptr without allocating.
func (t *Transcoder) CopyTo(ptr uint32, b []byte) error {
	buf, err := t.views.Range(ptr, uint32(len(b)))
	if err != nil {
		return err
	}
	copy(buf, b)
	return nil
}

// ReadFloat32s copies n f32 elements starting at ptr.
func (t *Transcoder) ReadFloat32s(ptr, n uint32) ([]float32, error) {
	if _, err := t.views.Range(ptr, n*4); err != nil {
		return nil, err
	}
	if ptr%4 != 0 {
		return nil, errors.New(errors.PhaseMarshal, errors.KindInvalidData).
			Ptr(ptr).Detail("f32 array is not 4-byte aligned").Build()
	}
	view := t.views.Float32()
	out := make([]float32, n)
	for i := range out {
		out[i] = view.Get(ptr/4 + uint32(i))
	}
	return out, nil
}

// ReadInt32s copies n i32 elements starting at ptr.
func (t *Transcoder) ReadInt32s(ptr, n uint32) ([]int32, error) {
	if _, err := t.views.Range(ptr, n*4); err != nil {
		return nil, err
	}
	if ptr%4 != 0 {
		return nil, errors.New(errors.PhaseMarshal, errors.KindInvalidData).
			Ptr(ptr).Detail("i32 array is not 4-byte aligned").Build()
	}
	view := t.views.Int32()
	out := make([]int32, n)
	for i := range out {
		out[i] = view.Get(ptr/4 + uint32(i))
	}
	return out, nil
}
