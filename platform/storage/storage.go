// Package storage provides window.localStorage backed by a SQLite Store.
//
// All three imports are catching: a disabled store raises a SecurityError
// and a write past the quota raises a QuotaExceededError in the module.
package storage

import (
	"context"

	"github.com/wippyai/wbg-runtime/bindgen"
)

type Host struct {
	store *Store
}

// NewHost returns the import host for store.
func NewHost(store *Store) *Host {
	return &Host{store: store}
}

func (h *Host) Namespace() string {
	return bindgen.Namespace
}

func (h *Host) CatchFunctions() []string {
	return []string{
		"__wbg_local_storage_get",
		"__wbg_local_storage_set",
		"__wbg_local_storage_remove",
	}
}

// LocalStorageGet writes the value under the key as an optional string
// pair at retptr.
func (h *Host) LocalStorageGet(ctx context.Context, env *bindgen.Env, retptr, kp, kn uint32) error {
	key, err := env.Strings.ReadString(kp, kn)
	if err != nil {
		return err
	}
	v, ok, err := h.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return env.Strings.WriteRetString(ctx, retptr, v, ok)
}

func (h *Host) LocalStorageSet(ctx context.Context, env *bindgen.Env, kp, kn, vp, vn uint32) error {
	key, err := env.Strings.ReadString(kp, kn)
	if err != nil {
		return err
	}
	val, err := env.Strings.ReadString(vp, vn)
	if err != nil {
		return err
	}
	return h.store.Set(ctx, key, val)
}

func (h *Host) LocalStorageRemove(ctx context.Context, env *bindgen.Env, kp, kn uint32) error {
	key, err := env.Strings.ReadString(kp, kn)
	if err != nil {
		return err
	}
	return h.store.Remove(ctx, key)
}
