// Package bindgen binds the handle table, memory views, marshaling,
// closures and the event loop into one per-instance environment, and
// implements the core "wbg" intrinsics on top of it.
//
// # Environment
//
// Each instantiated module gets one Env. Host functions are shared by all
// instances of a runtime, so they find their Env through the call context:
//
//	func(ctx context.Context, env *bindgen.Env, ptr, n uint32) (resource.Handle, error)
//
// The engine fills the *Env parameter from FromContext(ctx).
//
// # Exception channel
//
// Host failures cross the boundary in one of two ways. Imports declared as
// catching store the failure in the module's exception register via
// __wbindgen_exn_store and return zero values; the module checks the
// register after the call. Everything else traps the current call:
//
//	marshaling error   (invalid UTF-8, bad pointer)   trap
//	protocol violation (bad handle, double free)      trap
//	__wbindgen_throw / __wbindgen_rethrow              trap
//	host failure in a catching import                 exception register
//
// Fatal reports an unrecoverable module error: the UI hook is told, the
// event loop stops and the instance refuses further calls.
package bindgen
