// Package fetch normalizes raw provider messages into domain records.
package fetch

import (
	"context"
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"
	"mailsync_server/pkg/snowflake"
)

// Fetched pairs a normalized message with the provider-side artifacts
// the orchestrator still needs after persistence (raw HTML for the body
// archive, the external id for traceability).
type Fetched struct {
	Message    *domain.Message
	ExternalID string
	RawHTML    string
}

type Fetcher struct {
	providers map[domain.Provider]out.MailProvider
	store     out.ContentStore
	ids       *snowflake.Generator
}

func NewFetcher(providers map[domain.Provider]out.MailProvider, store out.ContentStore, ids *snowflake.Generator) *Fetcher {
	return &Fetcher{
		providers: providers,
		store:     store,
		ids:       ids,
	}
}

// FetchReceived retrieves the newest received messages for the account,
// bounded by limit. A single malformed message is skipped, not fatal.
func (f *Fetcher) FetchReceived(ctx context.Context, account *domain.MailAccount, accessToken string, limit int) ([]*Fetched, error) {
	return f.fetch(ctx, account, accessToken, limit, domain.MessageReceived)
}

// FetchSent retrieves the newest sent messages for the account.
func (f *Fetcher) FetchSent(ctx context.Context, account *domain.MailAccount, accessToken string, limit int) ([]*Fetched, error) {
	return f.fetch(ctx, account, accessToken, limit, domain.MessageSent)
}

func (f *Fetcher) fetch(ctx context.Context, account *domain.MailAccount, accessToken string, limit int, kind domain.MessageKind) ([]*Fetched, error) {
	provider, ok := f.providers[account.Provider]
	if !ok {
		return nil, apperr.ProviderError(string(account.Provider), fmt.Errorf("unknown mail provider"))
	}

	var (
		raw []*out.ProviderMessage
		err error
	)
	switch kind {
	case domain.MessageSent:
		raw, err = provider.ListSent(ctx, accessToken, limit)
	default:
		raw, err = provider.ListReceived(ctx, accessToken, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s messages from %s: %w", kind, provider.ProviderName(), err)
	}

	results := make([]*Fetched, 0, len(raw))
	for _, pm := range raw {
		fetched, convErr := f.convert(ctx, provider, account, accessToken, pm, kind)
		if convErr != nil {
			logger.Warn("[Fetcher.fetch] Skipping message %s for account %d: %v", pm.ExternalID, account.ID, convErr)
			continue
		}
		results = append(results, fetched)
	}

	logger.Info("[Fetcher.fetch] Fetched %d/%d %s messages for account %d", len(results), len(raw), kind, account.ID)
	return results, nil
}

func (f *Fetcher) convert(ctx context.Context, provider out.MailProvider, account *domain.MailAccount, accessToken string, pm *out.ProviderMessage, kind domain.MessageKind) (*Fetched, error) {
	if pm.Date.IsZero() {
		return nil, fmt.Errorf("message %s has no date", pm.ExternalID)
	}

	msg := &domain.Message{
		AccountID:  account.ID,
		Kind:       kind,
		Subject:    pm.Subject,
		OccurredAt: pm.Date.UTC(),
		Recipients: flattenRecipients(pm.To, pm.Cc),
	}

	if kind == domain.MessageReceived {
		name, addr := parseSender(pm.From)
		msg.SenderName = name
		msg.SenderAddress = addr
		msg.IsRead = pm.IsRead
	}

	msg.Body = pm.BodyText
	if msg.Body == "" && pm.BodyHTML != "" {
		msg.Body = HTMLToText(pm.BodyHTML)
	}

	msg.Attachments = f.downloadAttachments(ctx, provider, account, accessToken, pm)

	return &Fetched{
		Message:    msg,
		ExternalID: pm.ExternalID,
		RawHTML:    pm.BodyHTML,
	}, nil
}

// downloadAttachments stores the file-kind attachments of one message.
// A failed attachment is dropped so the message still imports.
func (f *Fetcher) downloadAttachments(ctx context.Context, provider out.MailProvider, account *domain.MailAccount, accessToken string, pm *out.ProviderMessage) []*domain.Attachment {
	if len(pm.Attachments) == 0 {
		return nil
	}

	stored := make([]*domain.Attachment, 0, len(pm.Attachments))
	for _, att := range pm.Attachments {
		if att.Kind != out.AttachmentFile {
			logger.Debug("[Fetcher.downloadAttachments] Skipping %s attachment %s on message %s", att.Kind, att.Name, pm.ExternalID)
			continue
		}

		data, err := provider.DownloadAttachment(ctx, accessToken, pm.ExternalID, att.ExternalID)
		if err != nil {
			logger.Warn("[Fetcher.downloadAttachments] Failed to download %s from message %s: %v", att.Name, pm.ExternalID, err)
			continue
		}

		id, err := f.ids.Generate()
		if err != nil {
			logger.Warn("[Fetcher.downloadAttachments] Failed to mint file name for %s: %v", att.Name, err)
			continue
		}
		storedName := fmt.Sprintf("%d%s", id, filepath.Ext(att.Name))
		path, err := f.store.Save(ctx, data, storedName, account.ID, "attachments")
		if err != nil {
			logger.Warn("[Fetcher.downloadAttachments] Failed to store %s from message %s: %v", att.Name, pm.ExternalID, err)
			continue
		}

		stored = append(stored, &domain.Attachment{
			FileName:   att.Name,
			StoredPath: path,
			MimeType:   att.MimeType,
			Size:       int64(len(data)),
		})
	}
	return stored
}

// parseSender splits a raw From header into display name and address.
// A header that fails RFC 5322 parsing is kept verbatim as the address.
func parseSender(from string) (name, address string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return "", strings.TrimSpace(from)
	}
	return addr.Name, addr.Address
}

func flattenRecipients(to, cc []string) []string {
	if len(to)+len(cc) == 0 {
		return nil
	}
	out := make([]string, 0, len(to)+len(cc))
	for _, r := range to {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	for _, r := range cc {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
