package wasmgen

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
)

func TestWriter_LEB128(t *testing.T) {
	tests := []struct {
		name string
		fn   func(w *writer)
		want []byte
	}{
		{"u32 zero", func(w *writer) { w.u32(0) }, []byte{0x00}},
		{"u32 127", func(w *writer) { w.u32(127) }, []byte{0x7f}},
		{"u32 128", func(w *writer) { w.u32(128) }, []byte{0x80, 0x01}},
		{"u32 624485", func(w *writer) { w.u32(624485) }, []byte{0xe5, 0x8e, 0x26}},
		{"s64 -1", func(w *writer) { w.s64(-1) }, []byte{0x7f}},
		{"s64 63", func(w *writer) { w.s64(63) }, []byte{0x3f}},
		{"s64 64", func(w *writer) { w.s64(64) }, []byte{0xc0, 0x00}},
		{"s64 -8", func(w *writer) { w.s64(-8) }, []byte{0x78}},
		{"s64 -123456", func(w *writer) { w.s64(-123456) }, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w writer
			tt.fn(&w)
			if !bytes.Equal(w.bytes(), tt.want) {
				t.Errorf("got %x, want %x", w.bytes(), tt.want)
			}
		})
	}
}

func TestModule_EncodeHeader(t *testing.T) {
	bin := New().Encode()
	want := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(bin, want) {
		t.Errorf("empty module = %x, want %x", bin, want)
	}
}

func TestModule_TypeDedup(t *testing.T) {
	m := New()
	a := m.Func(Sig(Params(I32), Results(I32)), nil, NewCode().LocalGet(0))
	b := m.Func(Sig(Params(I32), Results(I32)), nil, NewCode().LocalGet(0))
	if a == b {
		t.Fatal("function indices must differ")
	}
	if len(m.types) != 1 {
		t.Errorf("types = %d, want 1", len(m.types))
	}
}

func TestModule_ImportAfterFuncPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	m := New()
	m.Func(Sig(nil, nil), nil, NewCode())
	m.Import("env", "f", Sig(nil, nil))
}

func TestModule_RunsOnWazero(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	m := New()
	m.Memory(1, "memory")
	m.Data(16, []byte("hi"))
	counter := m.Global(I32, 40)
	m.ExportGlobal("counter", counter)
	add := m.Func(Sig(Params(I32, I32), Results(I32)), nil, NewCode().
		LocalGet(0).LocalGet(1).I32Add())
	m.Export("add", add)
	m.Export("bump", m.Func(Sig(nil, Results(I32)), nil, NewCode().
		GlobalGet(counter).I32Const(2).Call(add).GlobalSet(counter).
		GlobalGet(counter)))
	m.Export("sum_f64", m.Func(Sig(Params(F64), Results(F64)), nil, NewCode().
		LocalGet(0).F64Const(0.5).F64Add()))

	mod, err := rt.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("add").Call(ctx, 2, 3)
	if err != nil || res[0] != 5 {
		t.Errorf("add = %v, %v", res, err)
	}
	res, err = mod.ExportedFunction("bump").Call(ctx)
	if err != nil || res[0] != 42 {
		t.Errorf("bump = %v, %v", res, err)
	}
	if got := mod.ExportedGlobal("counter").Get(); got != 42 {
		t.Errorf("counter = %d", got)
	}
	if b, ok := mod.Memory().Read(16, 2); !ok || string(b) != "hi" {
		t.Errorf("data segment = %q", b)
	}
}

func TestGuest_Allocator(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	g := NewGuest()
	mod, err := rt.Instantiate(ctx, g.Encode())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	malloc := mod.ExportedFunction("__wbindgen_malloc")
	realloc := mod.ExportedFunction("__wbindgen_realloc")

	res, err := malloc.Call(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res[0] != GuestHeapBase {
		t.Errorf("first malloc = %d, want %d", res[0], GuestHeapBase)
	}
	res, _ = malloc.Call(ctx, 1)
	if res[0] != GuestHeapBase+16 {
		t.Errorf("second malloc = %d, want 8-aligned %d", res[0], GuestHeapBase+16)
	}

	mod.Memory().Write(GuestHeapBase, []byte("abcdefghij"))
	res, err = realloc.Call(ctx, GuestHeapBase, 10, 4)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := mod.Memory().Read(uint32(res[0]), 4); string(b) != "abcd" {
		t.Errorf("realloc copied %q", b)
	}

	// Past the first page.
	res, err = malloc.Call(ctx, 100000)
	if err != nil {
		t.Fatalf("large malloc: %v", err)
	}
	if end := uint32(res[0]) + 100000; end > mod.Memory().Size() {
		t.Errorf("memory size %d below allocation end %d", mod.Memory().Size(), end)
	}

	sp := mod.ExportedFunction("__wbindgen_add_to_stack_pointer")
	delta := int32(-16)
	res, _ = sp.Call(ctx, uint64(uint32(delta)))
	if res[0] != GuestStackTop-16 {
		t.Errorf("stack pointer = %d", res[0])
	}

	if _, err := mod.ExportedFunction("__wbindgen_exn_store").Call(ctx, 140); err != nil {
		t.Fatal(err)
	}
	if got := mod.ExportedGlobal("exn").Get(); got != 140 {
		t.Errorf("exn = %d", got)
	}
	if _, err := mod.ExportedFunction("__wbindgen_invoke_dtor").Call(ctx, 1, 2, 3); err != nil {
		t.Fatal(err)
	}
	if got := mod.ExportedGlobal("dtor_calls").Get(); got != 1 {
		t.Errorf("dtor_calls = %d", got)
	}
}
