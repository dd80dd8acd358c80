package wasmgen

// Guest memory layout shared by generated bindgen guests.
const (
	GuestStackTop = 1024
	GuestHeapBase = 2048
)

// Import describes a function import of a guest.
type Import struct {
	Module string
	Name   string
	Type   FuncType
}

// Guest is a module carrying the bindgen export table: memory,
// __wbindgen_malloc, __wbindgen_realloc, __wbindgen_free,
// __wbindgen_exn_store, __wbindgen_add_to_stack_pointer and
// __wbindgen_invoke_dtor. The allocator is a bump allocator that grows
// memory on demand; free is a no-op.
//
// Globals are exported as "heap", "sp", "exn" and "dtor_calls".
type Guest struct {
	*Module

	HeapGlobal  uint32
	SPGlobal    uint32
	ExnGlobal   uint32
	DtorsGlobal uint32

	MallocFunc uint32

	imports map[string]uint32
}

// NewGuest declares imports and the standard exports. Further functions
// are added with Func and Export.
func NewGuest(imports ...Import) *Guest {
	g := &Guest{Module: New(), imports: make(map[string]uint32, len(imports))}
	for _, imp := range imports {
		g.imports[imp.Name] = g.Import(imp.Module, imp.Name, imp.Type)
	}

	g.Memory(1, "memory")
	g.HeapGlobal = g.Global(I32, GuestHeapBase)
	g.SPGlobal = g.Global(I32, GuestStackTop)
	g.ExnGlobal = g.Global(I32, 0)
	g.DtorsGlobal = g.Global(I32, 0)
	g.ExportGlobal("heap", g.HeapGlobal)
	g.ExportGlobal("sp", g.SPGlobal)
	g.ExportGlobal("exn", g.ExnGlobal)
	g.ExportGlobal("dtor_calls", g.DtorsGlobal)

	i32 := Params(I32)
	g.MallocFunc = g.Func(Sig(i32, i32), Params(I32, I32), NewCode().
		GlobalGet(g.HeapGlobal).LocalTee(1).
		LocalGet(0).I32Add().I32Const(7).I32Add().I32Const(-8).I32And().LocalSet(2).
		Block().
		LocalGet(2).MemorySize().I32Const(16).I32Shl().I32LeU().BrIf(0).
		LocalGet(2).MemorySize().I32Const(16).I32Shl().I32Sub().
		I32Const(65535).I32Add().I32Const(16).I32ShrU().
		MemoryGrow().I32Const(-1).I32Eq().
		If().Unreachable().End().
		End().
		LocalGet(2).GlobalSet(g.HeapGlobal).
		LocalGet(1))
	g.Export("__wbindgen_malloc", g.MallocFunc)

	realloc := g.Func(Sig(Params(I32, I32, I32), i32), Params(I32), NewCode().
		LocalGet(2).Call(g.MallocFunc).LocalSet(3).
		LocalGet(3).LocalGet(0).
		LocalGet(1).LocalGet(2).LocalGet(1).LocalGet(2).I32LtU().Select().
		MemoryCopy().
		LocalGet(3))
	g.Export("__wbindgen_realloc", realloc)

	g.Export("__wbindgen_free", g.Func(Sig(Params(I32, I32), nil), nil, NewCode()))

	g.Export("__wbindgen_exn_store", g.Func(Sig(i32, nil), nil, NewCode().
		LocalGet(0).GlobalSet(g.ExnGlobal)))

	g.Export("__wbindgen_add_to_stack_pointer", g.Func(Sig(i32, i32), nil, NewCode().
		GlobalGet(g.SPGlobal).LocalGet(0).I32Add().GlobalSet(g.SPGlobal).
		GlobalGet(g.SPGlobal)))

	g.Export("__wbindgen_invoke_dtor", g.Func(Sig(Params(I32, I32, I32), nil), nil, NewCode().
		GlobalGet(g.DtorsGlobal).I32Const(1).I32Add().GlobalSet(g.DtorsGlobal)))

	return g
}

// Imported returns the function index of a declared import.
func (g *Guest) Imported(name string) uint32 {
	idx, ok := g.imports[name]
	if !ok {
		panic("wasmgen: import not declared: " + name)
	}
	return idx
}
