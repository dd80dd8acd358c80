// Package clock provides the time imports: performance.now and Date.now.
package clock

import (
	"context"
	"time"

	"github.com/wippyai/wbg-runtime/bindgen"
)

type Host struct {
	now   func() time.Time
	start time.Time
}

func New() *Host {
	return NewWithClock(time.Now)
}

// NewWithClock returns a host reading time from now. The performance
// origin is the first reading.
func NewWithClock(now func() time.Time) *Host {
	return &Host{now: now, start: now()}
}

func (h *Host) Namespace() string {
	return bindgen.Namespace
}

// PerformanceNow returns milliseconds since the host was created, with
// sub-millisecond precision. Never decreases.
func (h *Host) PerformanceNow(_ context.Context) float64 {
	return float64(h.Elapsed()) / float64(time.Millisecond)
}

// Elapsed returns the time since the performance origin. Other hosts that
// report performance timestamps measure from it.
func (h *Host) Elapsed() time.Duration {
	return h.now().Sub(h.start)
}

// DateNow returns the wall clock as Unix milliseconds.
func (h *Host) DateNow(_ context.Context) float64 {
	return float64(h.now().UnixMilli())
}
