// Package runtime provides the high-level API for running bindgen modules.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.Config{Logger: logger})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Platform services are ordinary hosts
//	rt.RegisterHost(clock.New())
//	rt.RegisterHost(console.New(logger))
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx) // runs __wbindgen_start
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	// Drive timers, promises and host callbacks until idle
//	if err := inst.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Host Functions
//
// The core __wbindgen intrinsics are registered by New. Further imports are
// plain Go functions:
//
//	rt.RegisterFunc("wbg", "__wbg_alert", func(ctx context.Context, env *bindgen.Env, ptr, n uint32) error {
//	    msg, err := env.Strings.ReadString(ptr, n)
//	    ...
//	})
//
// or a Host whose exported methods become imports, named after the method
// (PerformanceNow -> __wbg_performance_now). Hosts implementing
// ExplicitRegistrar choose import names themselves.
//
// Catching imports (RegisterFuncCatching, CatchingHost) turn non-fatal
// errors into exceptions the module observes through __wbindgen_exn_store.
// Everything else traps, and a trap is routed to Config.OnFatal.
//
// Hosts must be registered before the first Load; loading binds each
// namespace into the engine once.
//
// # Calling Exports
//
//	inst.Call(ctx, "set_title", "hello")          // string -> (ptr, len)
//	v, err := inst.CallValue(ctx, "make_value")    // handle -> value
//	s, err := inst.CallString(ctx, "version")      // retptr string
//	res, err := inst.CallRaw(ctx, "tick", api.EncodeF64(dt))
package runtime
