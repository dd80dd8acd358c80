// Package ui relays the module's loading screen and error screen to a
// Reporter.
package ui

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/bindgen"
)

// Reporter displays loading progress and fatal errors. Methods are called
// on the instance's loop goroutine and must not block.
type Reporter interface {
	SetProgressTitle(title string)
	// SetProgress reports done units of work. total is meaningful only when
	// hasTotal is set.
	SetProgress(done float64, total float64, hasTotal bool)
	ShowError(msg string)
}

// LogReporter writes reports to a zap logger.
type LogReporter struct {
	logger *zap.Logger
}

func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger.Named("ui")}
}

func (r *LogReporter) SetProgressTitle(title string) {
	r.logger.Info("progress", zap.String("title", title))
}

func (r *LogReporter) SetProgress(done, total float64, hasTotal bool) {
	if !hasTotal {
		r.logger.Debug("progress", zap.Float64("done", done))
		return
	}
	r.logger.Debug("progress", zap.Float64("done", done), zap.Float64("total", total))
}

func (r *LogReporter) ShowError(msg string) {
	r.logger.Error("fatal error", zap.String("message", msg))
}

// Fraction returns done/total clamped to [0, 1]. Without a total, or with
// a total that is not positive, it is 0.
func Fraction(done, total float64, hasTotal bool) float64 {
	if !hasTotal || !(total > 0) || math.IsNaN(done) {
		return 0
	}
	return math.Max(0, math.Min(1, done/total))
}

type Host struct {
	reporter Reporter
}

func NewHost(r Reporter) *Host {
	return &Host{reporter: r}
}

func (h *Host) Namespace() string {
	return bindgen.Namespace
}

func (h *Host) SetProgressTitle(_ context.Context, env *bindgen.Env, ptr, n uint32) error {
	title, err := env.Strings.ReadString(ptr, n)
	if err != nil {
		return err
	}
	h.reporter.SetProgressTitle(title)
	return nil
}

// SetProgress takes its arguments in the order the module passes them:
// the done count, the total's presence flag, then the total.
func (h *Host) SetProgress(_ context.Context, done float64, hasTotal bool, total float64) {
	h.reporter.SetProgress(done, total, hasTotal)
}

func (h *Host) ShowError(_ context.Context, env *bindgen.Env, ptr, n uint32) error {
	msg, err := env.Strings.ReadString(ptr, n)
	if err != nil {
		return err
	}
	h.reporter.ShowError(msg)
	return nil
}
