package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/playsignal/tracker/internal/tracker"
)

const (
	// Channel is the Redis pub/sub channel carrying every domain event, for
	// dashboard and other external collaborators.
	Channel    = "activity:events"
	publishTTL = 5 * time.Second
)

// Publisher pushes domain events onto a Redis pub/sub channel.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher creates a Redis-backed event publisher.
func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, logger: logger}
}

// PublishEvent implements tracker.EventPublisher. Publish failures are
// logged and dropped; the feed is advisory and must never stall the engine.
func (p *Publisher) PublishEvent(ev tracker.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("marshal event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTTL)
	defer cancel()
	if err := p.client.Publish(ctx, Channel, body).Err(); err != nil {
		p.logger.Warn("publish event", zap.Error(err), zap.String("kind", string(ev.Kind)))
	}
}
