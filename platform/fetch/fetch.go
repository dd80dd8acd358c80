// Package fetch provides window.fetch over net/http.
//
// Requests run on their own goroutine and hold the instance's event loop
// open until they settle; results are handed back to the loop with Post,
// so promises only ever settle on the loop goroutine. Only GET is
// supported, which is all the module's asset loader issues.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/bindgen"
	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/eventloop"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/value"
)

const (
	// DefaultMaxBodyBytes bounds response bodies when Config.MaxBodyBytes is 0.
	DefaultMaxBodyBytes = 256 << 20

	// DefaultTimeout bounds a request when Config.Timeout is 0.
	DefaultTimeout = 60 * time.Second
)

type Config struct {
	// Client sends requests. Nil uses a client with Timeout.
	Client *http.Client

	// BaseURL resolves relative request URLs, the way a page's location does.
	BaseURL string

	// MaxBodyBytes bounds a response body read by response_bytes.
	MaxBodyBytes int64

	// Timeout bounds each request. Ignored when Client is set.
	Timeout time.Duration
}

type Host struct {
	client  *http.Client
	base    *url.URL
	maxBody int64
}

// New returns a fetch host. A BaseURL that does not parse is an error.
func New(cfg Config) (*Host, error) {
	h := &Host{client: cfg.Client, maxBody: cfg.MaxBodyBytes}
	if h.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		h.client = &http.Client{Timeout: timeout}
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
				Cause(err).Detail("fetch base URL %q", cfg.BaseURL).Build()
		}
		h.base = base
	}
	return h, nil
}

func (h *Host) Namespace() string {
	return bindgen.Namespace
}

func (h *Host) CatchFunctions() []string {
	return []string{"__wbg_response_bytes"}
}

// Fetch starts a GET request and returns a promise of a Response.
func (h *Host) Fetch(ctx context.Context, env *bindgen.Env, up, un uint32) (resource.Handle, error) {
	return h.fetch(ctx, env, up, un, nil)
}

// FetchWithSignal is Fetch bound to an AbortSignal.
func (h *Host) FetchWithSignal(ctx context.Context, env *bindgen.Env, up, un uint32, sig resource.Handle) (resource.Handle, error) {
	signal, err := resource.Lookup[*AbortSignal](env.Heap, sig)
	if err != nil {
		return 0, err
	}
	return h.fetch(ctx, env, up, un, signal)
}

func (h *Host) fetch(_ context.Context, env *bindgen.Env, up, un uint32, signal *AbortSignal) (resource.Handle, error) {
	raw, err := env.Strings.ReadString(up, un)
	if err != nil {
		return 0, err
	}
	p, resolve, reject := eventloop.NewPromise(env.Loop)
	handle := env.Heap.Put(p)

	target, err := h.resolve(raw)
	if err != nil {
		reject(value.NewError(value.TypeErrorName, err.Error()))
		return handle, nil
	}
	reqCtx := context.Background()
	if signal != nil {
		if signal.Aborted() {
			reject(signal.Reason())
			return handle, nil
		}
		reqCtx = signal.ctx
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		reject(value.NewError(value.TypeErrorName, err.Error()))
		return handle, nil
	}

	logger := env.Logger()
	release := env.Loop.Hold()
	go func() {
		defer release()
		resp, err := h.client.Do(req)
		env.Loop.PostOrDiscard(func(context.Context) error {
			if err != nil {
				logger.Debug("fetch failed", zap.String("url", target), zap.Error(err))
				reject(requestError(signal, err))
				return nil
			}
			logger.Debug("fetch completed", zap.String("url", target), zap.Int("status", resp.StatusCode))
			resolve(&Response{
				Status: resp.StatusCode,
				URL:    resp.Request.URL.String(),
				Header: resp.Header,
				body:   resp,
				signal: signal,
			})
			return nil
		}, func() {
			if err == nil {
				_ = resp.Body.Close()
			}
		})
	}()
	return handle, nil
}

func (h *Host) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL from %s", raw)
	}
	if h.base != nil {
		u = h.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("fetch of %q: unsupported scheme", raw)
	}
	return u.String(), nil
}

// requestError is the rejection reason for a failed request.
func requestError(signal *AbortSignal, err error) any {
	if signal != nil && signal.Aborted() {
		return signal.Reason()
	}
	return &value.Error{Name: value.TypeErrorName, Message: "failed to fetch", Cause: err}
}

// ResponseStatus returns the HTTP status of the Response at r.
func (h *Host) ResponseStatus(_ context.Context, env *bindgen.Env, r resource.Handle) (uint32, error) {
	resp, err := resource.Lookup[*Response](env.Heap, r)
	if err != nil {
		return 0, err
	}
	return uint32(resp.Status), nil
}

// ResponseBytes reads the body of the Response at r and returns a promise
// of a Uint8Array. A body can be read once.
func (h *Host) ResponseBytes(_ context.Context, env *bindgen.Env, r resource.Handle) (resource.Handle, error) {
	resp, err := resource.Lookup[*Response](env.Heap, r)
	if err != nil {
		return 0, err
	}
	p, resolve, reject := eventloop.NewPromise(env.Loop)
	handle := env.Heap.Put(p)
	if resp.bodyUsed || resp.body == nil {
		reject(value.NewError(value.TypeErrorName, "body stream already read"))
		return handle, nil
	}
	resp.bodyUsed = true

	release := env.Loop.Hold()
	go func() {
		defer release()
		data, reason := h.readBody(resp)
		env.Loop.Post(func(context.Context) error {
			if reason != nil {
				reject(reason)
				return nil
			}
			resolve(&value.Uint8Array{Data: data})
			return nil
		})
	}()
	return handle, nil
}

// readBody returns the body, or the rejection reason.
func (h *Host) readBody(resp *Response) ([]byte, any) {
	defer resp.close()
	data, err := io.ReadAll(io.LimitReader(resp.body.Body, h.maxBody+1))
	if err != nil {
		if resp.signal != nil && resp.signal.Aborted() {
			return nil, resp.signal.Reason()
		}
		return nil, &value.Error{Name: value.TypeErrorName, Message: "failed to read response body", Cause: err}
	}
	if int64(len(data)) > h.maxBody {
		return nil, value.NewError(value.QuotaExceededErrorName,
			fmt.Sprintf("response body exceeds %d bytes", h.maxBody))
	}
	return data, nil
}

// AbortControllerNew returns a new AbortController.
func (h *Host) AbortControllerNew(_ context.Context, env *bindgen.Env) resource.Handle {
	return env.Heap.Put(&AbortController{signal: newAbortSignal()})
}

// AbortControllerSignal returns the signal of the controller at c.
func (h *Host) AbortControllerSignal(_ context.Context, env *bindgen.Env, c resource.Handle) (resource.Handle, error) {
	ctrl, err := resource.Lookup[*AbortController](env.Heap, c)
	if err != nil {
		return 0, err
	}
	return env.Heap.Put(ctrl.signal), nil
}

// Abort aborts the controller at c. Pending requests reject with an
// AbortError.
func (h *Host) Abort(_ context.Context, env *bindgen.Env, c resource.Handle) error {
	ctrl, err := resource.Lookup[*AbortController](env.Heap, c)
	if err != nil {
		return err
	}
	ctrl.Abort()
	return nil
}
