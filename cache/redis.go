package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by L2.
const DefaultKeyPrefix = "rawr:token:"

// L2Options configures a Redis-backed store.
type L2Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix defaults to DefaultKeyPrefix.
	Prefix string
	Logger logr.Logger
}

// L2 is a Redis-backed token store shared between processes. All
// operations fail soft: if Redis is unavailable, Load reports a miss and
// writes are dropped. Failures are logged at V(1).
type L2 struct {
	rdb    *redis.Client
	prefix string
	log    logr.Logger
}

// NewL2 creates a new Redis-backed store.
func NewL2(opts L2Options) *L2 {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &L2{rdb: rdb, prefix: prefix, log: log.WithName("cache.l2")}
}

// Load retrieves the entry for key. A miss, an unreachable server and a
// corrupt record all return (Entry{}, false, nil).
func (l *L2) Load(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := l.rdb.Get(ctx, l.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.log.V(1).Info("load failed, treating as miss", "key", key, "error", err.Error())
		}
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		l.log.V(1).Info("corrupt record, treating as miss", "key", key, "error", err.Error())
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Save stores e with a TTL matching its expiry.
func (l *L2) Save(ctx context.Context, key string, e Entry) error {
	ttl := ttlUntil(e.Expiry)
	if !e.Expiry.IsZero() && ttl == 0 {
		return nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := l.rdb.Set(ctx, l.prefix+key, raw, ttl).Err(); err != nil {
		l.log.V(1).Info("save failed, dropping", "key", key, "error", err.Error())
	}
	return nil
}

// Delete removes key.
func (l *L2) Delete(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, l.prefix+key).Err(); err != nil {
		l.log.V(1).Info("delete failed", "key", key, "error", err.Error())
	}
	return nil
}

// Ping checks the Redis connection.
func (l *L2) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (l *L2) Close() error {
	return l.rdb.Close()
}
