package wasmgen

// ValType is a WebAssembly value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

const (
	magic   = 0x6d736100
	version = 1

	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secCode     = 10
	secData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02
	kindGlobal = 0x03
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Sig returns a FuncType.
func Sig(params, results []ValType) FuncType {
	return FuncType{Params: params, Results: results}
}

// Params is shorthand for a value type list.
func Params(ts ...ValType) []ValType { return ts }

// Results is shorthand for a value type list.
func Results(ts ...ValType) []ValType { return ts }

func (f FuncType) equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

type importFunc struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	typeIdx uint32
	locals  []ValType
	body    *Code
}

type global struct {
	typ     ValType
	mutable bool
	init    int64
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	offset uint32
	data   []byte
}

// Module is a module under construction. Function indices returned by
// Import and Func follow the binary index space, so every Import must
// precede the first Func.
type Module struct {
	types   []FuncType
	imports []importFunc
	funcs   []function
	globals []global
	exports []export
	data    []segment

	memPages  uint32
	hasMemory bool
}

// New returns an empty module.
func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(ft FuncType) uint32 {
	for i, t := range m.types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

// Import declares a function import and returns its function index.
func (m *Module) Import(module, name string, ft FuncType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmgen: Import after Func")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typeIdx: m.typeIndex(ft)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function and returns its function index.
func (m *Module) Func(ft FuncType, locals []ValType, body *Code) uint32 {
	m.funcs = append(m.funcs, function{typeIdx: m.typeIndex(ft), locals: locals, body: body})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Memory declares the module's memory with an initial size in pages.
// A non-empty export name exports it.
func (m *Module) Memory(pages uint32, exportName string) {
	m.memPages = pages
	m.hasMemory = true
	if exportName != "" {
		m.exports = append(m.exports, export{name: exportName, kind: kindMemory})
	}
}

// Global declares a mutable global of type I32 or I64 and returns its index.
func (m *Module) Global(typ ValType, init int64) uint32 {
	m.globals = append(m.globals, global{typ: typ, mutable: true, init: init})
	return uint32(len(m.globals) - 1)
}

// Export exports function idx.
func (m *Module) Export(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: idx})
}

// ExportGlobal exports global idx.
func (m *Module) ExportGlobal(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindGlobal, idx: idx})
}

// Data places b at offset when the module is instantiated.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, segment{offset: offset, data: b})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	var w writer
	w.u32le(magic)
	w.u32le(version)

	if len(m.types) > 0 {
		var sec writer
		sec.u32(uint32(len(m.types)))
		for _, t := range m.types {
			sec.byte(0x60)
			writeValTypes(&sec, t.Params)
			writeValTypes(&sec, t.Results)
		}
		w.section(secType, &sec)
	}

	if len(m.imports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.name(imp.module)
			sec.name(imp.name)
			sec.byte(kindFunc)
			sec.u32(imp.typeIdx)
		}
		w.section(secImport, &sec)
	}

	if len(m.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec.u32(f.typeIdx)
		}
		w.section(secFunction, &sec)
	}

	if m.hasMemory {
		var sec writer
		sec.u32(1)
		sec.byte(0x00)
		sec.u32(m.memPages)
		w.section(secMemory, &sec)
	}

	if len(m.globals) > 0 {
		var sec writer
		sec.u32(uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.byte(byte(g.typ))
			if g.mutable {
				sec.byte(0x01)
			} else {
				sec.byte(0x00)
			}
			if g.typ == I64 {
				sec.byte(opI64Const)
			} else {
				sec.byte(opI32Const)
			}
			sec.s64(g.init)
			sec.byte(opEnd)
		}
		w.section(secGlobal, &sec)
	}

	if len(m.exports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.exports)))
		for _, e := range m.exports {
			sec.name(e.name)
			sec.byte(e.kind)
			sec.u32(e.idx)
		}
		w.section(secExport, &sec)
	}

	if len(m.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body writer
			writeLocals(&body, f.locals)
			if f.body != nil {
				body.raw(f.body.bytes())
			}
			body.byte(opEnd)
			sec.vec(body.bytes())
		}
		w.section(secCode, &sec)
	}

	if len(m.data) > 0 {
		var sec writer
		sec.u32(uint32(len(m.data)))
		for _, d := range m.data {
			sec.byte(0x00)
			sec.byte(opI32Const)
			sec.s64(int64(int32(d.offset)))
			sec.byte(opEnd)
			sec.vec(d.data)
		}
		w.section(secData, &sec)
	}

	return w.bytes()
}

func writeValTypes(w *writer, ts []ValType) {
	w.u32(uint32(len(ts)))
	for _, t := range ts {
		w.byte(byte(t))
	}
}

// writeLocals run-length encodes local declarations.
func writeLocals(w *writer, locals []ValType) {
	type run struct {
		n   uint32
		typ ValType
	}
	var runs []run
	for _, l := range locals {
		if len(runs) > 0 && runs[len(runs)-1].typ == l {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{n: 1, typ: l})
	}
	w.u32(uint32(len(runs)))
	for _, r := range runs {
		w.u32(r.n)
		w.byte(byte(r.typ))
	}
}
