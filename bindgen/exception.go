package bindgen

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/resource"
	"github.com/wippyai/wbg-runtime/value"
)

// StoreException places v in the handle table and hands the handle to the
// module's exception register.
func (e *Env) StoreException(ctx context.Context, v any) error {
	h := e.Heap.Put(v)
	err := e.exports.ExnStore(WithEnv(ctx, e), uint32(h))
	e.Views.Invalidate()
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindFatal, err, "store exception")
	}
	return nil
}

// Throw returns the trap raised for __wbindgen_throw.
func (e *Env) Throw(msg string) error {
	return errors.Thrown(msg)
}

// Rethrow takes the value at h and returns a trap carrying it unchanged.
func (e *Env) Rethrow(h resource.Handle) error {
	v, err := e.Heap.Take(h)
	if err != nil {
		return err
	}
	return &errors.Exception{Value: v}
}

// Guard routes err for a catching import. Fatal errors are returned so they
// trap; any other failure is stored as an exception and Guard returns nil.
func (e *Env) Guard(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.IsFatal(err) {
		return err
	}
	e.logger.Debug("host exception", zap.Error(err))
	return e.StoreException(ctx, HostValue(err))
}

// HostValue returns the host value module code should see for err.
// Rethrown values keep their identity; host errors pass through; any other
// Go error becomes an Error value.
func HostValue(err error) any {
	var exc *errors.Exception
	if stderrors.As(err, &exc) {
		return exc.Value
	}
	var herr *value.Error
	if stderrors.As(err, &herr) {
		return herr
	}
	return value.FromError(err)
}

// Fatal records an unrecoverable module error. The fatal hook runs once,
// the event loop stops and later calls into the instance fail.
func (e *Env) Fatal(msg string) error {
	if e.fatal != nil {
		return e.fatal
	}
	e.fatal = errors.Fatal(msg)
	e.logger.Error("fatal module error", zap.String("message", msg))
	if e.onFatal != nil {
		e.onFatal(msg)
	}
	e.Loop.Stop(e.fatal)
	return e.fatal
}

// Err returns the recorded fatal error, if any.
func (e *Env) Err() error {
	return e.fatal
}
