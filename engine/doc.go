// Package engine integrates bindgen modules with wazero.
//
// The engine package provides three main types:
//
//	Engine   - Owns a wazero runtime and the host modules defined in it
//	Module   - A compiled module whose imports were checked against the hosts
//	Instance - A running module; implements bindgen.Exports
//
// # Host Functions
//
// Host modules are built from plain Go functions. Parameters and results
// map to core value types by kind:
//
//	Go kind                       Core type
//	───────────────────────────────────────
//	uint32, int32, bool, Handle   i32
//	uint64, int64                 i64
//	float32                       f32
//	float64                       f64
//
// A leading context.Context and *bindgen.Env are filled in per call. The
// Env travels in the context of every call into the module, so one host
// module serves all instances of an engine.
//
// Errors returned by a handler trap the calling module code by panicking
// inside the host function; wazero unwinds the module stack and returns the
// error from the outermost export call. Catching imports instead route
// non-fatal errors to the module's exception register.
//
// # Instantiation Flow
//
//  1. Engine.DefineHostModule() registers host functions per namespace
//  2. Engine.Compile() compiles the binary and reports unresolved imports
//  3. Module.RequireExports() checks the bindgen export table
//  4. Module.Instantiate() creates an anonymous Instance
package engine
