package out

import (
	"context"

	"github.com/google/uuid"
)

// SyncJobProducer enqueues account sync jobs for the worker consumer.
type SyncJobProducer interface {
	PublishAccountSync(ctx context.Context, accountID int64, userID uuid.UUID) (string, error)
}
