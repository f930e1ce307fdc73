package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// RedisNotifier publishes alert events on a pub/sub channel
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a Redis publisher on an existing client
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (r *RedisNotifier) Name() string { return "redis" }

// Notify implements Notifier
func (r *RedisNotifier) Notify(ctx context.Context, batch []alerts.Alert) error {
	payload, err := json.Marshal(NewEvent(batch))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel, err)
	}
	return nil
}
