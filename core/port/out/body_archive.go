package out

import (
	"context"
	"time"
)

// BodyDocument is the raw fetched body of a message, archived so that
// reclassification never needs a provider refetch.
type BodyDocument struct {
	MessageID  int64
	AccountID  int64
	ExternalID string
	HTML       string
	Text       string
	FetchedAt  time.Time
}

// BodyArchive stores raw message bodies with a retention TTL.
type BodyArchive interface {
	SaveBody(ctx context.Context, doc *BodyDocument) error
	GetBody(ctx context.Context, messageID int64) (*BodyDocument, error)
}
