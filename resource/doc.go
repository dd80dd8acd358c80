// Package resource provides the handle table that lets module code refer to
// host values by integer index.
//
// # Layout
//
// The first 128 slots are reserved and read as undefined. The next four
// slots hold constants that module code may pass without allocating:
//
//	128  undefined
//	129  null
//	130  true
//	131  false
//
// Put never returns a handle below FirstFree (132). Dropping a reserved or
// constant handle is a no-op.
//
// # Free list
//
// Released slots form an intrusive singly linked list through each slot's
// next index. Put pops the head, Drop pushes onto it, so a slot is reused
// in last-released-first order:
//
//	table := resource.NewTable()
//	a := table.Put("a") // 132
//	b := table.Put("b") // 133
//	table.Drop(a)
//	c := table.Put("c") // 132 again
//
// Releasing a slot that is already free returns a double-free error and
// leaves the list intact.
//
// # Observers
//
// Register observers to trace handle lifecycle:
//
//	unsubscribe := table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("handle %d %s", e.Handle, e.Type)
//	}))
//	defer unsubscribe()
//
// Handles are not garbage collected. Module code releases them through
// __wbindgen_object_drop_ref; Close releases whatever remains when the
// instance shuts down.
package resource
