package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// KeyDeadLetter is the Redis list holding notifications that exhausted
	// their retry budget.
	KeyDeadLetter = "notify:dlq"
	// MaxEntries caps the dead-letter list; older entries are trimmed.
	MaxEntries = 1000
)

// Entry is one abandoned notification delivery.
type Entry struct {
	TaskID     string    `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	EventKind  string    `json:"event_kind"`
	SessionKey string    `json:"session_key"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failed_at"`
}

// DeadLetter stores abandoned deliveries in a capped Redis list for
// inspection via the operational API.
type DeadLetter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewDeadLetter creates a Redis-backed dead-letter store.
func NewDeadLetter(client *redis.Client, logger *zap.Logger) *DeadLetter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadLetter{client: client, logger: logger}
}

// Push prepends an entry and trims the list to MaxEntries.
func (d *DeadLetter) Push(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	pipe := d.client.Pipeline()
	pipe.LPush(ctx, KeyDeadLetter, raw)
	pipe.LTrim(ctx, KeyDeadLetter, 0, MaxEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	d.logger.Debug("delivery moved to dead letter",
		zap.String("task_id", entry.TaskID),
		zap.String("agent_id", entry.AgentID),
		zap.String("reason", entry.Reason))
	return nil
}

// Peek returns up to n most recent entries without removing them.
func (d *DeadLetter) Peek(ctx context.Context, n int) ([]Entry, error) {
	raws, err := d.client.LRange(ctx, KeyDeadLetter, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange: %w", err)
	}
	entries := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			d.logger.Warn("invalid dead letter entry", zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
