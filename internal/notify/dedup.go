package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper suppresses repeat notifications for the same (agent, session key,
// event kind) triple within the cool-down window.
type Deduper interface {
	// Allow reports whether this triple may fire now, and if so claims the
	// window so later calls within it return false.
	Allow(ctx context.Context, agentID, sessionKey, eventKind string) bool
}

// RedisDeduper claims windows with SET NX EX, so the suppression also holds
// across restarts.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
}

// NewRedisDeduper creates a Redis-backed deduper.
func NewRedisDeduper(client *redis.Client, window time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, window: window}
}

func (d *RedisDeduper) Allow(ctx context.Context, agentID, sessionKey, eventKind string) bool {
	key := fmt.Sprintf("notify:dedup:%s:%s:%s", agentID, sessionKey, eventKind)
	ok, err := d.client.SetNX(ctx, key, 1, d.window).Result()
	if err != nil {
		// Dedup is best-effort; on Redis failure prefer delivering over
		// silently dropping.
		return true
	}
	return ok
}

// MemoryDeduper is the in-process fallback used in tests and deployments
// without Redis.
type MemoryDeduper struct {
	window time.Duration
	mu     sync.Mutex
	seen   map[string]time.Time
	now    func() time.Time
}

// NewMemoryDeduper creates an in-memory deduper.
func NewMemoryDeduper(window time.Duration) *MemoryDeduper {
	return &MemoryDeduper{window: window, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Allow(_ context.Context, agentID, sessionKey, eventKind string) bool {
	key := agentID + "\x00" + sessionKey + "\x00" + eventKind
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.window {
		return false
	}
	d.seen[key] = now
	// opportunistic prune of expired entries
	for k, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, k)
		}
	}
	return true
}
