// Package random provides crypto.getRandomValues.
package random

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/wippyai/wbg-runtime/bindgen"
	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/value"
)

// MaxBytes is the largest buffer one call may fill.
const MaxBytes = 65536

type Host struct {
	reader io.Reader
}

func New() *Host {
	return NewWithReader(rand.Reader)
}

// NewWithReader returns a host drawing entropy from r.
func NewWithReader(r io.Reader) *Host {
	return &Host{reader: r}
}

func (h *Host) Namespace() string {
	return bindgen.Namespace
}

func (h *Host) CatchFunctions() []string {
	return []string{"__wbg_get_random_values"}
}

// GetRandomValues fills n bytes at ptr. Requests above MaxBytes fail with
// a QuotaExceededError.
func (h *Host) GetRandomValues(_ context.Context, env *bindgen.Env, ptr, n uint32) error {
	if n > MaxBytes {
		return value.NewError(value.QuotaExceededErrorName, fmt.Sprintf(
			"the byte length (%d) exceeds the number of bytes of entropy available (%d)", n, MaxBytes))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(h.reader, buf); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindIO, err, "read entropy")
	}
	return env.Strings.CopyTo(ptr, buf)
}
