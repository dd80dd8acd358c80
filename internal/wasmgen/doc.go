// Package wasmgen assembles small WebAssembly modules for tests.
//
// It covers the subset needed to write guest modules by hand: function
// types, function imports, one memory, i32 globals, exports, active data
// segments and a code builder with the integer, f64, memory and control
// instructions those guests use.
//
//	m := wasmgen.New()
//	log := m.Import("wbg", "__wbg_console_log", wasmgen.Sig(wasmgen.Params(wasmgen.I32, wasmgen.I32), nil))
//	m.Memory(1, "memory")
//	main := m.Func(wasmgen.Sig(nil, nil), nil, wasmgen.NewCode().
//		I32Const(16).I32Const(5).Call(log))
//	m.Export("main", main)
//	bin := m.Encode()
package wasmgen
