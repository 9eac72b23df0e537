package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultMaxLen = 100_000

// RedisPublisher appends events to a Redis stream, trimmed to roughly maxLen entries.
type RedisPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewRedisPublisher(client redis.UniversalClient, stream string) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		stream: stream,
		maxLen: defaultMaxLen,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: event.Values(),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
