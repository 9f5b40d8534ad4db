package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DiffChannel is the Redis channel carrying a table's spectator frames.
func DiffChannel(tableID string) string {
	return fmt.Sprintf("room:%s:diffs", tableID)
}

// RedisClient is the part of *redis.Client the publisher uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher relays spectator frames of every table to Redis so other
// processes can serve viewers. Each message is the JSON pair [index, state].
type RedisPublisher struct {
	client RedisClient
	logger zerolog.Logger
}

// NewRedisPublisher wraps client.
func NewRedisPublisher(client RedisClient, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger.With().Str("component", "redis_publisher").Logger(),
	}
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("broadcast: connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Run drains sub until it is closed or ctx ends. Publish errors are logged
// and the frame is skipped.
func (p *RedisPublisher) Run(ctx context.Context, sub *Subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-sub.Frames():
			if !ok {
				return nil
			}
			if err := p.publish(ctx, f); err != nil {
				p.logger.Warn().Err(err).Str("table_id", f.TableID).Int("index", f.Index).Msg("Failed to publish frame")
			}
		}
	}
}

func (p *RedisPublisher) publish(ctx context.Context, f Frame) error {
	payload, err := json.Marshal([]any{f.Index, f.State})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, DiffChannel(f.TableID), payload).Err()
}
