package stream

import (
	"context"
	"time"

	"mailsync_server/core/port/out"

	"github.com/google/uuid"
)

type Producer struct {
	stream *RedisStream
}

var _ out.SyncJobProducer = (*Producer)(nil)

func NewProducer(stream *RedisStream) *Producer {
	return &Producer{stream: stream}
}

type Job struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (p *Producer) PublishAccountSync(ctx context.Context, accountID int64, userID uuid.UUID) (string, error) {
	job := &Job{
		ID:   uuid.New().String(),
		Type: "mail.sync",
		Payload: map[string]any{
			"account_id": accountID,
			"user_id":    userID.String(),
		},
		CreatedAt: time.Now(),
	}
	return p.stream.Publish(ctx, StreamAccountSync, job)
}
