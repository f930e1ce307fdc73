package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces fingerprint keys
const DefaultKeyPrefix = "redalert:seen:"

// Redis shares seen fingerprints across processes with SET NX EX
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis wraps an existing client
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, prefix: DefaultKeyPrefix}
}

// DialRedis connects and pings
func DialRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedis(client, ttl), nil
}

// Client exposes the underlying connection for sharing with other components
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Seen implements Store
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	set, err := r.client.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark %s: %w", key, err)
	}
	return !set, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
