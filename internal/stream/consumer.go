package stream

import (
	"context"
	"log"
	"time"

	"github.com/goccy/go-json"

	"mailsync_server/adapter/in/worker"
)

const backlogCheckInterval = time.Minute

type Consumer struct {
	stream  *RedisStream
	handler *worker.Handler
	name    string
}

func NewConsumer(stream *RedisStream, handler *worker.Handler, name string) *Consumer {
	return &Consumer{
		stream:  stream,
		handler: handler,
		name:    name,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	// Create consumer groups
	streams := []string{StreamAccountSync}
	for _, s := range streams {
		if err := c.stream.CreateGroup(ctx, s); err != nil {
			log.Printf("Failed to create group for %s: %v", s, err)
		}
	}

	go c.consume(ctx, StreamAccountSync)
	go c.monitorBacklog(ctx, StreamAccountSync)
}

// monitorBacklog periodically reports messages delivered but not yet
// acked, surfacing stuck or crashed consumers.
func (c *Consumer) monitorBacklog(ctx context.Context, stream string) {
	ticker := time.NewTicker(backlogCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := c.stream.Pending(ctx, stream)
			if err != nil {
				continue
			}
			if count > 0 {
				log.Printf("Stream %s has %d pending messages", stream, count)
			}
		}
	}
}

func (c *Consumer) consume(ctx context.Context, stream string) {
	c.stream.Consume(ctx, stream, c.name, func(id string, data []byte) error {
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			log.Printf("Failed to unmarshal job: %v", err)
			return err
		}

		msg := &worker.Message{
			ID:        job.ID,
			Type:      job.Type,
			Payload:   job.Payload,
			CreatedAt: job.CreatedAt,
		}

		return c.handler.Process(ctx, msg)
	})
}
