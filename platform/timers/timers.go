// Package timers provides setTimeout and requestAnimationFrame on the
// instance's event loop.
//
// Callbacks are borrowed: the module keeps its closure alive until the
// timer fires or is cleared. A callback that throws is logged and the loop
// keeps running; a fatal error stops it.
package timers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/bindgen"
	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/platform/clock"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/value"
)

// DefaultFrameRate is the animation frame rate when Config.FrameRate is 0.
const DefaultFrameRate = 60

type Config struct {
	// FrameRate is the number of animation frames per second.
	FrameRate float64

	// Clock supplies the origin of frame timestamps. Share the clock host
	// registered for performance.now so both report the same timeline.
	// Nil uses a clock starting at New.
	Clock *clock.Host
}

type Host struct {
	frame time.Duration
	clock *clock.Host
}

func New(cfg Config) *Host {
	rate := cfg.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Host{
		frame: time.Duration(float64(time.Second) / rate),
		clock: clk,
	}
}

func (h *Host) Namespace() string {
	return bindgen.Namespace
}

// SetTimeout calls cb after ms milliseconds and returns the timer id.
// Negative delays run as soon as possible.
func (h *Host) SetTimeout(_ context.Context, env *bindgen.Env, cb resource.Handle, ms int32) (int32, error) {
	fn, err := callback(env, cb)
	if err != nil {
		return 0, err
	}
	d := time.Duration(ms) * time.Millisecond
	return env.Loop.SetTimeout(d, func(ctx context.Context) error {
		return run(ctx, env, fn, "timeout")
	}), nil
}

func (h *Host) ClearTimeout(_ context.Context, env *bindgen.Env, id int32) {
	env.Loop.ClearTimeout(id)
}

// RequestAnimationFrame calls cb at the next frame boundary with the frame
// timestamp in milliseconds. Callbacks requested during the same frame
// share the boundary and the timestamp.
func (h *Host) RequestAnimationFrame(_ context.Context, env *bindgen.Env, cb resource.Handle) (int32, error) {
	fn, err := callback(env, cb)
	if err != nil {
		return 0, err
	}
	elapsed := h.clock.Elapsed()
	next := (elapsed/h.frame + 1) * h.frame
	stamp := float64(next) / float64(time.Millisecond)
	return env.Loop.SetTimeout(next-elapsed, func(ctx context.Context) error {
		return run(ctx, env, fn, "animation frame", stamp)
	}), nil
}

func (h *Host) CancelAnimationFrame(_ context.Context, env *bindgen.Env, id int32) {
	env.Loop.ClearTimeout(id)
}

func callback(env *bindgen.Env, h resource.Handle) (value.Callable, error) {
	fn, err := env.Callable(h)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Handle(uint32(h)).Detail("timer callback is not callable").Build()
	}
	return fn, nil
}

func run(ctx context.Context, env *bindgen.Env, fn value.Callable, what string, args ...any) error {
	_, err := fn.Call(bindgen.WithEnv(ctx, env), args...)
	if err != nil && !errors.IsFatal(err) {
		env.Logger().Warn("uncaught error in "+what+" callback", zap.Error(err))
		return nil
	}
	return err
}
