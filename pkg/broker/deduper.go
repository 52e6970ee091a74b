package broker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "lwgs:dedup:"

// RedisDeduper remembers handled delivery keys with a TTL so redeliveries
// after a broker reconnect are dropped cheaply.
type RedisDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisDeduper(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	count, err := d.client.Exists(ctx, dedupKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *RedisDeduper) MarkSeen(ctx context.Context, key string) error {
	return d.client.Set(ctx, dedupKeyPrefix+key, 1, d.ttl).Err()
}

// MemoryDeduper is the in-process fallback when redis is not configured.
type MemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryDeduper{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

func (d *MemoryDeduper) Seen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	d.cleanupLocked(now)

	seenAt, ok := d.entries[key]
	if !ok {
		return false, nil
	}
	if now.Sub(seenAt) > d.ttl {
		delete(d.entries, key)
		return false, nil
	}
	return true, nil
}

func (d *MemoryDeduper) MarkSeen(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries[key] = time.Now()
	return nil
}

func (d *MemoryDeduper) cleanupLocked(now time.Time) {
	for key, seenAt := range d.entries {
		if now.Sub(seenAt) > d.ttl {
			delete(d.entries, key)
		}
	}
}
