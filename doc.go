// Package wbgruntime runs WebAssembly modules built against the wasm-bindgen
// "wbg" import ABI on top of wazero.
//
// A compiled module can only pass integers and floats across its boundary.
// This library gives it access to host values through an integer handle
// table, marshals strings and byte buffers through its linear memory, bridges
// host callbacks into module closures with deterministic finalization, and
// turns host failures into checked exceptions.
//
// # Architecture Overview
//
//	wbgruntime/     Root package with core Memory and Allocator interfaces
//	├── resource/   Handle table with sentinel slots and intrusive free list
//	├── memory/     Cached linear-memory views with generation invalidation
//	├── transcoder/ String and byte marshaling between Go and linear memory
//	├── closure/    Reference-counted closures invoked through module thunks
//	├── value/      Tagged host values and debug formatting
//	├── eventloop/  Single-threaded executor, timers and promises
//	├── bindgen/    Per-instance environment and core __wbindgen intrinsics
//	├── engine/     wazero integration
//	├── runtime/    High-level API for loading and running modules
//	├── platform/   Storage, clock, random, console, timers, fetch, UI imports
//	├── errors/     Structured error types for debugging
//	└── cmd/run/    CLI running a module with a progress display
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, runtime.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	services, err := platform.Register(ctx, rt, platform.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer services.Close()
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	// Drive timers, promises and callbacks until the module goes idle.
//	if err := inst.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance is NOT thread-safe:
// the handle table, memory views and closures belong to the goroutine running
// the instance's event loop. Other goroutines hand work to it with
// eventloop.Loop.Post.
//
// # Memory Model
//
// Any call into the module may grow linear memory, which invalidates every
// slice previously read from it. All memory access goes through memory.Views,
// which tracks a generation counter and rejects stale views.
package wbgruntime
