// Package classifier provides adapters for the external categorization
// service.
package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"mailsync_server/core/port/out"
	"mailsync_server/pkg/httputil"
	"mailsync_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
)

// =============================================================================
// HTTP Classifier Adapter
// =============================================================================

// HTTPClassifier implements out.LabelClassifier against the
// POST /classify endpoint. Server-side failures are retried with
// exponential backoff behind a circuit breaker; client-side errors
// (4xx) are never retried, a bad batch stays bad.
type HTTPClassifier struct {
	baseURL     string
	client      *http.Client
	cb          *gobreaker.CircuitBreaker
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
}

var _ out.LabelClassifier = (*HTTPClassifier)(nil)

type Config struct {
	BaseURL     string
	MaxAttempts int           // total attempts per batch (default 3)
	Backoff     time.Duration // initial delay, doubled per retry (default 2s)
	Timeout     time.Duration // per-request deadline (default 20s)
}

func NewHTTPClassifier(cfg *Config) *HTTPClassifier {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	cbSettings := gobreaker.Settings{
		Name:        "classifier-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[HTTPClassifier] Circuit %s: %s -> %s", name, from, to)
		},
	}

	return &HTTPClassifier{
		baseURL:     cfg.BaseURL,
		client:      httputil.ClassifierClient(),
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
		maxAttempts: maxAttempts,
		backoff:     backoff,
		timeout:     timeout,
	}
}

type classifyRequest struct {
	Messages []out.ClassifyItem `json:"messages"`
}

// ClassifyBatch submits all items in one request and returns the
// per-message labels.
func (c *HTTPClassifier) ClassifyBatch(ctx context.Context, items []out.ClassifyItem) ([]out.ClassifyResult, error) {
	payload, err := json.Marshal(classifyRequest{Messages: items})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classify request: %w", err)
	}

	body, err := c.cb.Execute(func() (interface{}, error) {
		return c.postWithRetry(ctx, c.baseURL+"/classify", payload)
	})
	if err != nil {
		return nil, err
	}

	var results []out.ClassifyResult
	if err := json.Unmarshal(body.([]byte), &results); err != nil {
		return nil, fmt.Errorf("malformed classify response: %w", err)
	}
	return results, nil
}

// Ping probes the service's docs endpoint, which is cheap and always
// available when the service is up.
func (c *HTTPClassifier) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/docs", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("classifier unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("classifier liveness probe returned %d", resp.StatusCode)
	}
	return nil
}

// postWithRetry retries transport errors and 5xx responses with
// exponential backoff, up to maxAttempts tries in total. 4xx responses
// fail immediately.
func (c *HTTPClassifier) postWithRetry(ctx context.Context, url string, payload []byte) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff << (attempt - 2)
			logger.Warn("[HTTPClassifier.postWithRetry] Attempt %d/%d after %v: %v", attempt, c.maxAttempts, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, retryable, err := c.post(ctx, url, payload)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("classify failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *HTTPClassifier) post(ctx context.Context, url string, payload []byte) (body []byte, retryable bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read classifier response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, string(data))
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("classifier rejected request with %d: %s", resp.StatusCode, string(data))
	}

	return data, false, nil
}
