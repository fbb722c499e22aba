// Package provider implements mailbox provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"mailsync_server/core/port/out"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// =============================================================================
// Gmail Adapter
// =============================================================================

// Per-call deadlines. The Gmail client has no client-level timeout, so
// every outbound call gets its own bound; a stalled message fetch must
// not hang a whole sync run. Vars so tests can shrink them.
var (
	gmailServiceTimeout    = 30 * time.Second
	gmailListTimeout       = 30 * time.Second
	gmailMessageTimeout    = 15 * time.Second
	gmailAttachmentTimeout = 30 * time.Second
)

// GmailAdapter implements out.MailProvider against the Gmail API. It is
// stateless: the caller supplies an access token per call, so one
// adapter instance serves every connected Google account.
type GmailAdapter struct {
	// extra client options; tests point the service at a local server.
	opts []option.ClientOption
}

var _ out.MailProvider = (*GmailAdapter)(nil)

func NewGmailAdapter() *GmailAdapter {
	return &GmailAdapter{}
}

func (a *GmailAdapter) ProviderName() string {
	return "gmail"
}

func (a *GmailAdapter) ListReceived(ctx context.Context, accessToken string, limit int) ([]*out.ProviderMessage, error) {
	return a.list(ctx, accessToken, "INBOX", limit)
}

func (a *GmailAdapter) ListSent(ctx context.Context, accessToken string, limit int) ([]*out.ProviderMessage, error) {
	return a.list(ctx, accessToken, "SENT", limit)
}

func (a *GmailAdapter) DownloadAttachment(ctx context.Context, accessToken, messageID, attachmentID string) ([]byte, error) {
	service, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	attCtx, cancel := context.WithTimeout(ctx, gmailAttachmentTimeout)
	defer cancel()

	att, err := service.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(attCtx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err)
	}

	data, err := base64.URLEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

func (a *GmailAdapter) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	svcCtx, cancel := context.WithTimeout(ctx, gmailServiceTimeout)
	defer cancel()

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	opts := append([]option.ClientOption{option.WithTokenSource(src)}, a.opts...)
	service, err := gmail.NewService(svcCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return service, nil
}

// list returns one page of messages under the label, newest first (the
// Gmail list endpoint's natural order).
func (a *GmailAdapter) list(ctx context.Context, accessToken, labelID string, limit int) ([]*out.ProviderMessage, error) {
	service, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	req := service.Users.Messages.List("me").LabelIds(labelID)
	if limit > 0 {
		req = req.MaxResults(int64(limit))
	}

	listCtx, cancel := context.WithTimeout(ctx, gmailListTimeout)
	defer cancel()

	resp, err := req.Context(listCtx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}

	// Parallel per-message fetch with bounded concurrency to stay under
	// the API rate limit.
	const maxConcurrency = 5
	type result struct {
		index int
		msg   *out.ProviderMessage
	}

	results := make(chan result, len(resp.Messages))
	semaphore := make(chan struct{}, maxConcurrency)

	for i, m := range resp.Messages {
		go func(idx int, msgID string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			msgCtx, cancel := context.WithTimeout(ctx, gmailMessageTimeout)
			defer cancel()

			full, err := service.Users.Messages.Get("me", msgID).Format("full").Context(msgCtx).Do()
			if err != nil {
				results <- result{index: idx}
				return
			}
			results <- result{index: idx, msg: parseGmailMessage(full)}
		}(i, m.Id)
	}

	ordered := make([]*out.ProviderMessage, len(resp.Messages))
	for range resp.Messages {
		r := <-results
		ordered[r.index] = r.msg
	}

	messages := make([]*out.ProviderMessage, 0, len(ordered))
	for _, msg := range ordered {
		if msg != nil {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// =============================================================================
// Payload parsing
// =============================================================================

func parseGmailMessage(msg *gmail.Message) *out.ProviderMessage {
	pm := &out.ProviderMessage{
		ExternalID: msg.Id,
		IsRead:     !containsLabel(msg.LabelIds, "UNREAD"),
		Date:       time.Unix(msg.InternalDate/1000, 0),
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "From":
				pm.From = header.Value
			case "To":
				pm.To = splitAddresses(header.Value)
			case "Cc":
				pm.Cc = splitAddresses(header.Value)
			case "Subject":
				pm.Subject = header.Value
			}
		}

		pm.BodyHTML, pm.BodyText = parseGmailBody(msg.Payload)
		pm.Attachments = parseGmailAttachments(msg.Payload)
	}

	return pm
}

func splitAddresses(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}

func parseGmailBody(payload *gmail.MessagePart) (html, text string) {
	if payload == nil {
		return "", ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		switch payload.MimeType {
		case "text/html":
			data, _ := base64.URLEncoding.DecodeString(payload.Body.Data)
			html = string(data)
		case "text/plain":
			data, _ := base64.URLEncoding.DecodeString(payload.Body.Data)
			text = string(data)
		}
	}

	for _, part := range payload.Parts {
		h, t := parseGmailBody(part)
		if html == "" {
			html = h
		}
		if text == "" {
			text = t
		}
	}

	return html, text
}

func parseGmailAttachments(payload *gmail.MessagePart) []*out.ProviderAttachment {
	if payload == nil {
		return nil
	}

	var attachments []*out.ProviderAttachment
	if payload.Filename != "" && payload.Body != nil && payload.Body.AttachmentId != "" {
		att := &out.ProviderAttachment{
			ExternalID: payload.Body.AttachmentId,
			Name:       payload.Filename,
			MimeType:   payload.MimeType,
			Size:       payload.Body.Size,
			Kind:       out.AttachmentFile,
		}
		// A Content-ID header marks the part as an inline image.
		for _, header := range payload.Headers {
			if header.Name == "Content-ID" {
				att.Kind = out.AttachmentInline
			}
		}
		attachments = append(attachments, att)
	}

	for _, part := range payload.Parts {
		attachments = append(attachments, parseGmailAttachments(part)...)
	}
	return attachments
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
