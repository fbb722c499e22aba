package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"mailsync_server/core/port/out"

	"github.com/goccy/go-json"
)

func newTestClassifier(baseURL string) *HTTPClassifier {
	return NewHTTPClassifier(&Config{
		BaseURL:     baseURL,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	})
}

func TestClassifyBatch_Success(t *testing.T) {
	var gotReq classifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":7,"labels":["work","spam"]},{"id":8,"labels":[]}]`))
	}))
	defer srv.Close()

	c := newTestClassifier(srv.URL)
	results, err := c.ClassifyBatch(context.Background(), []out.ClassifyItem{
		{ID: 7, Content: "standup notes"},
		{ID: 8, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(gotReq.Messages) != 2 || gotReq.Messages[0].ID != 7 {
		t.Errorf("request not keyed by message id: %+v", gotReq.Messages)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 7 || len(results[0].Labels) != 2 {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestClassifyBatch_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"id":1,"labels":["finance"]}]`))
	}))
	defer srv.Close()

	c := newTestClassifier(srv.URL)
	results, err := c.ClassifyBatch(context.Background(), []out.ClassifyItem{{ID: 1, Content: "invoice"}})
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestClassifyBatch_NoRetryOnClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newTestClassifier(srv.URL)
	if _, err := c.ClassifyBatch(context.Background(), []out.ClassifyItem{{ID: 1, Content: "x"}}); err == nil {
		t.Fatal("expected error on 422")
	}
	if attempts != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", attempts)
	}
}

func TestClassifyBatch_ExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClassifier(srv.URL)
	if _, err := c.ClassifyBatch(context.Background(), []out.ClassifyItem{{ID: 1, Content: "x"}}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 total attempts, got %d", attempts)
	}
}

func TestClassifyBatch_SlowServerHitsDeadline(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(&Config{
		BaseURL:     srv.URL,
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Timeout:     50 * time.Millisecond,
	})
	if _, err := c.ClassifyBatch(context.Background(), []out.ClassifyItem{{ID: 1, Content: "x"}}); err == nil {
		t.Fatal("expected deadline error from stalled classifier")
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("timeouts are retryable, expected 2 attempts, got %d", got)
	}
}

func TestClassifyBatch_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	c := newTestClassifier(srv.URL)
	if _, err := c.ClassifyBatch(context.Background(), []out.ClassifyItem{{ID: 1, Content: "x"}}); err == nil {
		t.Fatal("expected error on malformed response")
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/docs" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClassifier(srv.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping failure: %v", err)
	}

	down := newTestClassifier("http://127.0.0.1:1")
	if err := down.Ping(context.Background()); err == nil {
		t.Error("expected ping failure against dead endpoint")
	}
}

func TestTruncatePrompt(t *testing.T) {
	long := strings.Repeat("x", 999) + "한"
	got := truncatePrompt(long, 1000)
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a multi-byte rune")
	}
	if len(got) != 999 {
		t.Errorf("expected cut before the straddling rune, got %d bytes", len(got))
	}
	if truncatePrompt("short", 1000) != "short" {
		t.Error("content under the cap must pass through")
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare array", `[{"id":1,"labels":[]}]`, `[{"id":1,"labels":[]}]`},
		{"fenced", "```json\n[{\"id\":1,\"labels\":[\"work\"]}]\n```", `[{"id":1,"labels":["work"]}]`},
		{"with prose", `Here you go: [{"id":2,"labels":[]}] hope that helps`, `[{"id":2,"labels":[]}]`},
		{"no array", "sorry, cannot help", "sorry, cannot help"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONArray(tt.input); got != tt.expected {
				t.Errorf("extractJSONArray(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}
