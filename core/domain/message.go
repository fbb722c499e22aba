package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MessageKind discriminates the message variants. Received messages carry
// sender, read flag and tag assignments; sent and draft messages do not.
type MessageKind string

const (
	MessageReceived MessageKind = "received"
	MessageSent     MessageKind = "sent"
	MessageDraft    MessageKind = "draft"
)

type Message struct {
	ID        int64       `json:"id" db:"id"`
	AccountID int64       `json:"account_id" db:"account_id"`
	Kind      MessageKind `json:"kind" db:"kind"`

	Subject string `json:"subject" db:"subject"`
	Body    string `json:"body" db:"body"` // decoded plain text

	// Received: delivery time. Sent: send time. Draft: creation time.
	// Always UTC.
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`

	// Received only.
	SenderName    string `json:"sender_name,omitempty" db:"sender_name"`
	SenderAddress string `json:"sender_address,omitempty" db:"sender_address"`
	IsRead        bool   `json:"is_read" db:"is_read"`

	Recipients []string `json:"recipients"` // To + Cc, flattened; Bcc excluded

	IsFavorite bool `json:"is_favorite" db:"is_favorite"`
	IsSpam     bool `json:"is_spam" db:"is_spam"`
	IsDeleted  bool `json:"is_deleted" db:"is_deleted"`

	Attachments []*Attachment `json:"attachments,omitempty"`
	Tags        []*Tag        `json:"tags,omitempty"` // received only

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Attachment is a downloaded file attachment persisted to the content
// store. Inline and reference attachment kinds are never stored.
type Attachment struct {
	ID         int64  `json:"id" db:"id"`
	MessageID  int64  `json:"message_id" db:"message_id"`
	FileName   string `json:"file_name" db:"file_name"`
	StoredPath string `json:"stored_path" db:"stored_path"`
	MimeType   string `json:"mime_type" db:"mime_type"`
	Size       int64  `json:"size" db:"size"`
}

// DedupKey approximates remote message identity as
// (subject, timestamp truncated to the second, sender address).
// Two legitimate messages sharing all three within one second collide;
// the remote APIs expose no stable id usable across both providers.
func (m *Message) DedupKey() string {
	return DedupKey(m.Subject, m.OccurredAt, m.SenderAddress)
}

func DedupKey(subject string, occurredAt time.Time, sender string) string {
	return fmt.Sprintf("%s|%d|%s",
		subject,
		occurredAt.UTC().Truncate(time.Second).Unix(),
		strings.ToLower(sender),
	)
}

type MessageRepository interface {
	GetByID(ctx context.Context, id int64) (*Message, error)
	// ListByAccount returns non-deleted messages of one kind, newest first.
	ListByAccount(ctx context.Context, accountID int64, kind MessageKind, limit, offset int) ([]*Message, error)
	// ListDedupKeys returns the dedup keys of all stored messages of the
	// given kind for the account, for duplicate filtering before insert.
	ListDedupKeys(ctx context.Context, accountID int64, kind MessageKind) (map[string]struct{}, error)
	// CreateBatch inserts messages in a single transaction and flushes, so
	// database-assigned IDs are populated on return.
	CreateBatch(ctx context.Context, messages []*Message) error
	CreateAttachments(ctx context.Context, attachments []*Attachment) error
	SetSpam(ctx context.Context, messageID int64, spam bool) error
	Update(ctx context.Context, message *Message) error
	CountByAccount(ctx context.Context, accountID int64, kind MessageKind) (int, error)
}
