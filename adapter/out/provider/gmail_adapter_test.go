package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"
)

func newTestGmailAdapter(srv *httptest.Server) *GmailAdapter {
	return &GmailAdapter{opts: []option.ClientOption{option.WithEndpoint(srv.URL)}}
}

func gmailFullMessage(id, from, subject, body string) string {
	data := base64.URLEncoding.EncodeToString([]byte(body))
	return fmt.Sprintf(`{
		"id": %q,
		"internalDate": "1700000000000",
		"labelIds": ["INBOX", "UNREAD"],
		"payload": {
			"mimeType": "text/plain",
			"headers": [
				{"name": "From", "value": %q},
				{"name": "To", "value": "me@example.com"},
				{"name": "Subject", "value": %q}
			],
			"body": {"data": %q, "size": 10}
		}
	}`, id, from, subject, data)
}

func TestGmailListReceived(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/messages"):
			if got := r.URL.Query().Get("labelIds"); got != "INBOX" {
				t.Errorf("expected INBOX label filter, got %q", got)
			}
			fmt.Fprint(w, `{"messages":[{"id":"m1"}],"resultSizeEstimate":1}`)
		case strings.HasSuffix(r.URL.Path, "/messages/m1"):
			fmt.Fprint(w, gmailFullMessage("m1", "Alice <alice@example.com>", "weekly report", "numbers inside"))
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := newTestGmailAdapter(srv)
	messages, err := a.ListReceived(context.Background(), "tok", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	pm := messages[0]
	if pm.ExternalID != "m1" || pm.Subject != "weekly report" {
		t.Errorf("unexpected message: %+v", pm)
	}
	if pm.From != "Alice <alice@example.com>" {
		t.Errorf("unexpected sender: %q", pm.From)
	}
	if pm.IsRead {
		t.Error("UNREAD label must map to IsRead=false")
	}
	if pm.BodyText != "numbers inside" {
		t.Errorf("unexpected body: %q", pm.BodyText)
	}
	if pm.Date.IsZero() {
		t.Error("internalDate must populate the message date")
	}
}

func TestGmailList_DeadlineBoundsListCall(t *testing.T) {
	prev := gmailListTimeout
	gmailListTimeout = 50 * time.Millisecond
	defer func() { gmailListTimeout = prev }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, `{"messages":[]}`)
	}))
	defer srv.Close()

	a := newTestGmailAdapter(srv)
	if _, err := a.ListReceived(context.Background(), "tok", 10); err == nil {
		t.Fatal("expected deadline error from stalled list call")
	}
}

func TestGmailList_SlowMessageFetchIsDropped(t *testing.T) {
	prev := gmailMessageTimeout
	gmailMessageTimeout = 50 * time.Millisecond
	defer func() { gmailMessageTimeout = prev }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/messages"):
			fmt.Fprint(w, `{"messages":[{"id":"slow"},{"id":"fast"}]}`)
		case strings.HasSuffix(r.URL.Path, "/messages/slow"):
			time.Sleep(500 * time.Millisecond)
			fmt.Fprint(w, gmailFullMessage("slow", "a@b.c", "late", "late"))
		case strings.HasSuffix(r.URL.Path, "/messages/fast"):
			fmt.Fprint(w, gmailFullMessage("fast", "a@b.c", "on time", "on time"))
		}
	}))
	defer srv.Close()

	a := newTestGmailAdapter(srv)
	messages, err := a.ListReceived(context.Background(), "tok", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 || messages[0].ExternalID != "fast" {
		t.Fatalf("expected only the fast message to survive the deadline, got %d", len(messages))
	}
}
