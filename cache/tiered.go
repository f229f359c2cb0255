package cache

import (
	"context"
	"errors"
)

// Tiered combines a process-local store with a shared one. Reads check the
// local store first, then the shared one, promoting shared hits. Writes and
// deletes go to both.
type Tiered struct {
	local  Store
	shared Store
}

// NewTiered creates a two-level store, typically NewTiered(l1, l2).
func NewTiered(local, shared Store) *Tiered {
	return &Tiered{local: local, shared: shared}
}

// Load checks the local store, then the shared one.
func (t *Tiered) Load(ctx context.Context, key string) (Entry, bool, error) {
	if e, ok, err := t.local.Load(ctx, key); err != nil || ok {
		return e, ok, err
	}
	e, ok, err := t.shared.Load(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	_ = t.local.Save(ctx, key, e)
	return e, true, nil
}

// Save writes e to the shared store, then the local one.
func (t *Tiered) Save(ctx context.Context, key string, e Entry) error {
	return errors.Join(t.shared.Save(ctx, key, e), t.local.Save(ctx, key, e))
}

// Delete removes key from both stores.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	return errors.Join(t.shared.Delete(ctx, key), t.local.Delete(ctx, key))
}
