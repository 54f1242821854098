package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Backend shared across processes. Expiry is delegated to redis key TTLs and the
// size bound to the server's maxmemory policy, so there is no sweeper.
type Redis[V any] struct {
	client   redis.UniversalClient
	name     string
	prefix   string
	ttl      time.Duration
	logger   *slog.Logger
	observer Observer
}

// NewRedis creates a redis-backed cache whose keys are namespaced under "rag:<name>:".
func NewRedis[V any](client redis.UniversalClient, name string, ttl time.Duration, logger *slog.Logger, observer Observer) *Redis[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis[V]{
		client:   client,
		name:     name,
		prefix:   "rag:" + name + ":",
		ttl:      ttl,
		logger:   logger,
		observer: observer,
	}
}

// Get returns the decoded value for key. Connection and decode errors are logged and reported as a miss.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Cache read failed", "cache", r.name, "error", err)
		}
		r.observe(false)
		return zero, false
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		r.logger.Warn("Cache entry undecodable", "cache", r.name, "error", err)
		r.observe(false)
		return zero, false
	}
	r.observe(true)
	return v, true
}

// Set stores value with the cache TTL. Failures are logged only.
func (r *Redis[V]) Set(ctx context.Context, key string, value V) {
	raw, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn("Cache entry unencodable", "cache", r.name, "error", err)
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("Cache write failed", "cache", r.name, "error", err)
	}
}

func (r *Redis[V]) observe(hit bool) {
	if r.observer != nil {
		r.observer.CacheLookup(r.name, hit)
	}
}
