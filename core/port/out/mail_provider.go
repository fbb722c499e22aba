// Package out defines outbound ports implemented by adapters.
package out

import (
	"context"
	"time"
)

// ProviderAttachmentKind is the provider-side attachment type. Only file
// attachments are downloaded; inline and reference kinds are skipped.
type ProviderAttachmentKind string

const (
	AttachmentFile      ProviderAttachmentKind = "file"
	AttachmentInline    ProviderAttachmentKind = "inline"
	AttachmentReference ProviderAttachmentKind = "reference"
)

// ProviderMessage is a raw message as returned by a mailbox provider,
// before normalization into a domain.Message.
type ProviderMessage struct {
	ExternalID string
	Subject    string
	BodyHTML   string
	BodyText   string
	From       string   // raw header: `Display Name <addr@example.com>` or bare address
	To         []string
	Cc         []string
	// Date carries the provider's zone offset; normalization to UTC
	// happens in the fetcher.
	Date        time.Time
	IsRead      bool
	Attachments []*ProviderAttachment
}

type ProviderAttachment struct {
	ExternalID string
	Name       string
	MimeType   string
	Size       int64
	Kind       ProviderAttachmentKind
}

// MailProvider abstracts one mailbox provider API. Listings return a
// single page ordered newest-first; limit bounds the page size.
type MailProvider interface {
	ProviderName() string
	ListReceived(ctx context.Context, accessToken string, limit int) ([]*ProviderMessage, error)
	ListSent(ctx context.Context, accessToken string, limit int) ([]*ProviderMessage, error)
	DownloadAttachment(ctx context.Context, accessToken, messageID, attachmentID string) ([]byte, error)
}
