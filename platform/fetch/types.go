package fetch

import (
	"context"
	"net/http"
	"sync"

	"github.com/wippyai/wbg-runtime/value"
)

// Response is the host value of a completed request. The body is read at
// most once, by __wbg_response_bytes.
type Response struct {
	Status int
	URL    string
	Header http.Header

	body     *http.Response
	signal   *AbortSignal
	bodyUsed bool
	once     sync.Once
}

// Drop closes the body unless a read has claimed it. It runs when the
// module drops its last handle to the response, so an unread response does
// not hold its connection open. Loop goroutine only.
func (r *Response) Drop() {
	if r.bodyUsed {
		return
	}
	r.close()
}

func (r *Response) close() {
	r.once.Do(func() {
		if r.body != nil {
			_ = r.body.Body.Close()
		}
	})
}

// AbortSignal is the host value of AbortController.signal.
type AbortSignal struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newAbortSignal() *AbortSignal {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &AbortSignal{ctx: ctx, cancel: cancel}
}

// Aborted reports whether abort was called.
func (s *AbortSignal) Aborted() bool {
	return s.ctx.Err() != nil
}

// Reason returns the value requests were aborted with, or nil.
func (s *AbortSignal) Reason() any {
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}

// AbortController is the host value created by __wbg_abort_controller_new.
type AbortController struct {
	signal *AbortSignal
}

// Signal returns the controller's signal.
func (c *AbortController) Signal() *AbortSignal {
	return c.signal
}

// Abort cancels every request using the signal. Later calls have no effect.
func (c *AbortController) Abort() {
	c.signal.cancel(value.NewError(value.AbortErrorName, "the operation was aborted"))
}
