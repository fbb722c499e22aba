package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"mailsync_server/core/port/out"
	"mailsync_server/pkg/httputil"

	"github.com/goccy/go-json"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// =============================================================================
// Outlook Adapter (Microsoft Graph)
// =============================================================================

// OutlookAdapter implements out.MailProvider against the Graph REST API.
// Stateless like the Gmail adapter: the bearer token arrives per call.
type OutlookAdapter struct {
	client *http.Client
}

var _ out.MailProvider = (*OutlookAdapter)(nil)

func NewOutlookAdapter() *OutlookAdapter {
	return &OutlookAdapter{client: httputil.MailAPIClient()}
}

func (a *OutlookAdapter) ProviderName() string {
	return "outlook"
}

func (a *OutlookAdapter) ListReceived(ctx context.Context, accessToken string, limit int) ([]*out.ProviderMessage, error) {
	return a.list(ctx, accessToken, "inbox", "receivedDateTime", limit)
}

func (a *OutlookAdapter) ListSent(ctx context.Context, accessToken string, limit int) ([]*out.ProviderMessage, error) {
	return a.list(ctx, accessToken, "sentitems", "sentDateTime", limit)
}

func (a *OutlookAdapter) DownloadAttachment(ctx context.Context, accessToken, messageID, attachmentID string) ([]byte, error) {
	var att struct {
		ContentBytes string `json:"contentBytes"`
	}
	path := fmt.Sprintf("/me/messages/%s/attachments/%s", messageID, attachmentID)
	if err := a.get(ctx, accessToken, path, &att); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

func (a *OutlookAdapter) list(ctx context.Context, accessToken, folder, orderField string, limit int) ([]*out.ProviderMessage, error) {
	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", limit))
	params.Set("$orderby", orderField+" desc")

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	path := fmt.Sprintf("/me/mailFolders/%s/messages?%s", folder, params.Encode())
	if err := a.get(ctx, accessToken, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list %s messages: %w", folder, err)
	}

	messages := make([]*out.ProviderMessage, 0, len(resp.Value))
	for i := range resp.Value {
		pm := convertGraphMessage(&resp.Value[i])
		if pm.Attachments == nil && resp.Value[i].HasAttachments {
			pm.Attachments = a.listAttachments(ctx, accessToken, resp.Value[i].ID)
		}
		messages = append(messages, pm)
	}
	return messages, nil
}

// listAttachments fetches attachment metadata only; payloads come later
// through DownloadAttachment.
func (a *OutlookAdapter) listAttachments(ctx context.Context, accessToken, messageID string) []*out.ProviderAttachment {
	var resp struct {
		Value []struct {
			ODataType string `json:"@odata.type"`
			ID        string `json:"id"`
			Name      string `json:"name"`
			Type      string `json:"contentType"`
			Size      int64  `json:"size"`
			IsInline  bool   `json:"isInline"`
		} `json:"value"`
	}
	path := fmt.Sprintf("/me/messages/%s/attachments?$select=id,name,contentType,size,isInline", messageID)
	if err := a.get(ctx, accessToken, path, &resp); err != nil {
		return nil
	}

	attachments := make([]*out.ProviderAttachment, 0, len(resp.Value))
	for _, item := range resp.Value {
		att := &out.ProviderAttachment{
			ExternalID: item.ID,
			Name:       item.Name,
			MimeType:   item.Type,
			Size:       item.Size,
			Kind:       out.AttachmentFile,
		}
		switch {
		case item.IsInline:
			att.Kind = out.AttachmentInline
		case item.ODataType == "#microsoft.graph.referenceAttachment":
			att.Kind = out.AttachmentReference
		}
		attachments = append(attachments, att)
	}
	return attachments
}

func (a *OutlookAdapter) get(ctx context.Context, accessToken, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph API error: %d - %s", resp.StatusCode, string(body))
	}
	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// =============================================================================
// Graph API types
// =============================================================================

type graphMessage struct {
	ID               string           `json:"id"`
	Subject          string           `json:"subject"`
	Body             graphBody        `json:"body"`
	From             graphRecipient   `json:"from"`
	ToRecipients     []graphRecipient `json:"toRecipients"`
	CcRecipients     []graphRecipient `json:"ccRecipients"`
	IsRead           bool             `json:"isRead"`
	HasAttachments   bool             `json:"hasAttachments"`
	ReceivedDateTime string           `json:"receivedDateTime"`
	SentDateTime     string           `json:"sentDateTime"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func convertGraphMessage(msg *graphMessage) *out.ProviderMessage {
	pm := &out.ProviderMessage{
		ExternalID: msg.ID,
		Subject:    msg.Subject,
		From:       formatGraphAddress(msg.From),
		IsRead:     msg.IsRead,
	}

	pm.To = make([]string, len(msg.ToRecipients))
	for i, r := range msg.ToRecipients {
		pm.To[i] = formatGraphAddress(r)
	}
	pm.Cc = make([]string, len(msg.CcRecipients))
	for i, r := range msg.CcRecipients {
		pm.Cc[i] = formatGraphAddress(r)
	}

	if msg.Body.ContentType == "html" {
		pm.BodyHTML = msg.Body.Content
	} else {
		pm.BodyText = msg.Body.Content
	}

	// Sent items carry sentDateTime, inbox items receivedDateTime.
	stamp := msg.ReceivedDateTime
	if stamp == "" {
		stamp = msg.SentDateTime
	}
	pm.Date, _ = time.Parse(time.RFC3339, stamp)

	return pm
}

func formatGraphAddress(r graphRecipient) string {
	if r.EmailAddress.Name != "" {
		return fmt.Sprintf("%s <%s>", r.EmailAddress.Name, r.EmailAddress.Address)
	}
	return r.EmailAddress.Address
}
