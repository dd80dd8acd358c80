// Package closure bridges module-owned closures to host callers.
//
// A module closure is a pair of words (a, b) that only the module can
// interpret, plus a destructor index. The host holds it behind a Closure
// that counts references: one for the module's own handle and one per
// in-flight call. The destructor runs exactly once, when the count reaches
// zero at the end of a call. When the module releases its handle while no
// call is running, it cleans up on its own and the destructor is not run.
//
//	c := closure.New(inv, a, b, dtor, closure.Mut, closure.Invoke1)
//	c.Call(ctx, []uint64{uint64(h)})  // refs 1 -> 2 -> 1
//	c.ExternalDrop()                  // refs 1 -> 0, true: finalized
package closure

import (
	"context"

	"github.com/wippyai/wbg-runtime/errors"
)

// Kind selects the calling discipline of a closure.
type Kind uint8

const (
	// Shared closures may be invoked while another invocation is running.
	Shared Kind = iota
	// Mut closures hide their environment word during a call and reject
	// re-entrant invocation.
	Mut
	// Borrowed closures live only for the duration of one import call and
	// carry no destructor.
	Borrowed
)

func (k Kind) String() string {
	switch k {
	case Shared:
		return "shared"
	case Mut:
		return "mut"
	case Borrowed:
		return "borrowed"
	}
	return "unknown"
}

// Invoker calls into the module on behalf of closures.
type Invoker interface {
	Invoke(ctx context.Context, export string, args []uint64) ([]uint64, error)
	InvokeDtor(ctx context.Context, dtor, a, b uint32) error
}

// Closure is the host-side binding of a module closure.
// Not safe for concurrent use.
type Closure struct {
	inv        Invoker
	onFinalize []func()
	sig        Signature
	a, b       uint32
	dtor       uint32
	refs       uint32
	active     uint32
	kind       Kind
	finalized  bool
}

// New binds a module closure. The module's handle is the first reference.
func New(inv Invoker, a, b, dtor uint32, kind Kind, sig Signature) *Closure {
	return &Closure{
		inv:  inv,
		a:    a,
		b:    b,
		dtor: dtor,
		refs: 1,
		kind: kind,
		sig:  sig,
	}
}

// NewBorrowed binds a stack closure that is valid until Release.
func NewBorrowed(inv Invoker, a, b uint32, sig Signature) *Closure {
	return &Closure{inv: inv, a: a, b: b, refs: 1, kind: Borrowed, sig: sig}
}

// Kind returns the calling discipline.
func (c *Closure) Kind() Kind { return c.kind }

// Signature returns the thunk signature.
func (c *Closure) Signature() Signature { return c.sig }

// Refs returns the current reference count.
func (c *Closure) Refs() uint32 { return c.refs }

// Finalized reports whether the closure can no longer be called.
func (c *Closure) Finalized() bool { return c.finalized }

// Env returns the current (a, b) words. a is zero while a Mut or Borrowed
// closure is running and after finalization.
func (c *Closure) Env() (uint32, uint32) { return c.a, c.b }

// OnFinalize registers fn to run once when the closure is finalized. If the
// closure is already finalized fn runs immediately.
func (c *Closure) OnFinalize(fn func()) {
	if c.finalized {
		fn()
		return
	}
	c.onFinalize = append(c.onFinalize, fn)
}

// Ready reports why a call would be refused before entering the module:
// the closure is finalized, or it is exclusive and already running.
func (c *Closure) Ready() error {
	if c.finalized {
		return errors.New(errors.PhaseClosure, errors.KindFinalized).
			Detail("closure invoked after it was finalized").Build()
	}
	if c.kind != Shared && c.active > 0 {
		return errors.New(errors.PhaseClosure, errors.KindReentrant).
			Detail("%s closure invoked while already running", c.kind).Build()
	}
	return nil
}

// Call invokes the closure thunk with (a, b, args...). Cleanup runs even
// when the thunk fails; the thunk error is returned after it.
func (c *Closure) Call(ctx context.Context, args []uint64) (results []uint64, err error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}
	exclusive := c.kind != Shared

	a := c.a
	c.refs++
	c.active++
	if exclusive {
		c.a = 0
	}

	defer func() {
		c.active--
		c.refs--
		if c.kind == Borrowed {
			if !c.finalized {
				c.a = a
			}
			return
		}
		if c.refs == 0 {
			c.a = 0
			dtorErr := c.inv.InvokeDtor(ctx, c.dtor, a, c.b)
			c.finalize()
			if err == nil && dtorErr != nil {
				err = errors.Wrap(errors.PhaseClosure, errors.KindFatal, dtorErr, "closure destructor")
			}
			return
		}
		if exclusive {
			c.a = a
		}
	}()

	full := make([]uint64, 0, 2+len(args))
	full = append(full, uint64(a), uint64(c.b))
	full = append(full, args...)
	return c.inv.Invoke(ctx, c.sig.Export, full)
}

// ExternalDrop releases the module's reference. It reports true when this
// was the last reference; the module then frees the environment itself.
// Dropping a finalized closure is a no-op.
func (c *Closure) ExternalDrop() bool {
	if c.finalized || c.refs == 0 {
		return false
	}
	c.refs--
	if c.refs == 0 {
		c.a = 0
		c.finalize()
		return true
	}
	return false
}

// Release ends a borrowed closure's lifetime.
func (c *Closure) Release() {
	if c.finalized {
		return
	}
	c.a, c.b = 0, 0
	c.refs = 0
	c.finalize()
}

func (c *Closure) finalize() {
	c.finalized = true
	hooks := c.onFinalize
	c.onFinalize = nil
	for _, fn := range hooks {
		fn()
	}
}
