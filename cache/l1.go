package cache

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
)

// L1 is an in-process token store backed by ristretto.
type L1 struct {
	rc *ristretto.Cache[string, Entry]
}

// NewL1 creates a new L1 store. maxEntries bounds how many tokens it holds.
func NewL1(maxEntries int64) (*L1, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &L1{rc: rc}, nil
}

// Load retrieves the entry for key.
func (l *L1) Load(_ context.Context, key string) (Entry, bool, error) {
	e, ok := l.rc.Get(key)
	return e, ok, nil
}

// Save stores e until its expiry. An entry without expiry never leaves the
// store on its own.
func (l *L1) Save(_ context.Context, key string, e Entry) error {
	ttl := ttlUntil(e.Expiry)
	if !e.Expiry.IsZero() && ttl == 0 {
		return nil
	}
	l.rc.SetWithTTL(key, e, 1, ttl)
	l.rc.Wait()
	return nil
}

// Delete removes key.
func (l *L1) Delete(_ context.Context, key string) error {
	l.rc.Del(key)
	return nil
}

// Close stops ristretto's background goroutines.
func (l *L1) Close() error {
	l.rc.Close()
	return nil
}
