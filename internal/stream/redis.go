// Package stream carries background jobs over Redis Streams with
// consumer groups, so several worker processes share one queue.
package stream

import (
	"context"
	"time"

	"mailsync_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	StreamAccountSync = "mail:sync"
)

type RedisStream struct {
	client    *redis.Client
	group     string
	batchSize int64
	block     time.Duration
}

func NewRedisStream(client *redis.Client, group string) *RedisStream {
	return &RedisStream{
		client:    client,
		group:     group,
		batchSize: 10,
		block:     5 * time.Second,
	}
}

// Tune overrides the consume batch size and block interval.
// Non-positive values keep the defaults.
func (s *RedisStream) Tune(batchSize, blockMS int) {
	if batchSize > 0 {
		s.batchSize = int64(batchSize)
	}
	if blockMS > 0 {
		s.block = time.Duration(blockMS) * time.Millisecond
	}
}

func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": jsonData},
	}).Result()
}

// Consume blocks reading the stream until ctx is cancelled. A handler
// error leaves the message unacked for redelivery.
func (s *RedisStream) Consume(ctx context.Context, stream, consumer string, handler func(id string, data []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    s.batchSize,
			Block:    s.block,
		}).Result()

		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				logger.Error("[RedisStream.Consume] Read error on %s: %v", stream, err)
			}
			continue
		}

		for _, st := range streams {
			for _, msg := range st.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}

				if err := handler(msg.ID, []byte(data)); err != nil {
					logger.Error("[RedisStream.Consume] Handler error for %s: %v", msg.ID, err)
					continue
				}

				s.client.XAck(ctx, st.Stream, s.group, msg.ID)
			}
		}
	}
}

func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}
