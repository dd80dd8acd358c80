// Package console forwards the module's console output to a zap logger.
//
// console.log and console.warn borrow the module's string. console.error
// takes ownership and releases the allocation after logging, matching the
// panic hook that reports through it.
package console

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/bindgen"
)

type Host struct {
	logger *zap.Logger
}

// New returns a host logging to logger under the name "console".
// A nil logger discards output.
func New(logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{logger: logger.Named("console")}
}

func (h *Host) Namespace() string {
	return bindgen.Namespace
}

func (h *Host) ConsoleLog(_ context.Context, env *bindgen.Env, ptr, n uint32) error {
	msg, err := env.Strings.ReadString(ptr, n)
	if err != nil {
		return err
	}
	h.logger.Info(msg)
	return nil
}

func (h *Host) ConsoleWarn(_ context.Context, env *bindgen.Env, ptr, n uint32) error {
	msg, err := env.Strings.ReadString(ptr, n)
	if err != nil {
		return err
	}
	h.logger.Warn(msg)
	return nil
}

func (h *Host) ConsoleError(ctx context.Context, env *bindgen.Env, ptr, n uint32) error {
	msg, err := env.Strings.ReadString(ptr, n)
	if err != nil {
		return err
	}
	h.logger.Error(msg)
	return env.Strings.Free(ctx, ptr, n)
}
