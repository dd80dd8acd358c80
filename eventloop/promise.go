package eventloop

import (
	"context"
	"errors"

	werrors "github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/value"
)

// PromiseState is the settlement state of a Promise.
type PromiseState uint8

const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Promise is a host value that settles once, on the loop goroutine.
// Reactions always run as microtasks, never synchronously.
type Promise struct {
	loop      *Loop
	result    any
	reactions []reaction
	state     PromiseState
	resolving bool
}

type reaction struct {
	onOk, onErr value.Callable
	next        *Promise
}

// NewPromise returns a pending promise and functions that settle it. Only the
// first call to either function has an effect. Resolving with another
// Promise adopts its eventual state.
func NewPromise(l *Loop) (p *Promise, resolve func(any), reject func(any)) {
	p = &Promise{loop: l}
	return p, p.resolve, p.reject
}

// ResolvedPromise returns a promise resolved with v.
func ResolvedPromise(l *Loop, v any) *Promise {
	if p, ok := v.(*Promise); ok {
		return p
	}
	p, resolve, _ := NewPromise(l)
	resolve(v)
	return p
}

// RejectedPromise returns a promise rejected with reason.
func RejectedPromise(l *Loop, reason any) *Promise {
	p, _, reject := NewPromise(l)
	reject(reason)
	return p
}

// State returns the settlement state and the result or rejection reason.
func (p *Promise) State() (PromiseState, any) {
	return p.state, p.result
}

func (p *Promise) resolve(v any) {
	if p.resolving || p.state != Pending {
		return
	}
	p.resolving = true
	if other, ok := v.(*Promise); ok {
		if other == p {
			p.settle(Rejected, value.NewError(value.TypeErrorName, "promise resolved with itself"))
			return
		}
		p.loop.QueueMicrotask(func(ctx context.Context) error {
			other.then(nil, nil, p)
			return nil
		})
		return
	}
	p.settle(Fulfilled, v)
}

func (p *Promise) reject(reason any) {
	if p.resolving || p.state != Pending {
		return
	}
	p.resolving = true
	p.settle(Rejected, reason)
}

func (p *Promise) settle(state PromiseState, result any) {
	if p.state != Pending {
		return
	}
	p.state = state
	p.result = result
	reactions := p.reactions
	p.reactions = nil
	for _, r := range reactions {
		p.schedule(r)
	}
}

// Then registers reactions and returns the derived promise. A nil handler
// passes the result through.
func (p *Promise) Then(onOk, onErr value.Callable) *Promise {
	next := &Promise{loop: p.loop}
	p.then(onOk, onErr, next)
	return next
}

func (p *Promise) then(onOk, onErr value.Callable, next *Promise) {
	r := reaction{onOk: onOk, onErr: onErr, next: next}
	if p.state == Pending {
		p.reactions = append(p.reactions, r)
		return
	}
	p.schedule(r)
}

func (p *Promise) schedule(r reaction) {
	state, result := p.state, p.result
	p.loop.QueueMicrotask(func(ctx context.Context) error {
		handler := r.onOk
		if state == Rejected {
			handler = r.onErr
		}
		if handler == nil {
			if state == Rejected {
				r.next.rejectFromAdoption(result)
			} else {
				r.next.resolveFromAdoption(result)
			}
			return nil
		}
		out, err := handler.Call(ctx, result)
		if err != nil {
			if werrors.IsFatal(err) {
				return err
			}
			r.next.rejectFromAdoption(Reason(err))
			return nil
		}
		r.next.resolveFromAdoption(out)
		return nil
	})
}

// resolveFromAdoption settles a promise that is already marked as resolving
// because it adopted another promise, or is a fresh derived promise.
func (p *Promise) resolveFromAdoption(v any) {
	p.resolving = false
	p.resolve(v)
}

func (p *Promise) rejectFromAdoption(reason any) {
	p.resolving = false
	p.reject(reason)
}

// Reason unwraps the value carried by a rethrown exception so rejection
// reasons keep their identity.
func Reason(err error) any {
	var exc *werrors.Exception
	if errors.As(err, &exc) {
		return exc.Value
	}
	return err
}
