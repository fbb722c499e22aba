package out

import "context"

// ClassifyItem is one message submitted for categorization, keyed by its
// persisted message ID. The ID must already be committed to storage: it
// round-trips through the external service to match results back.
type ClassifyItem struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// ClassifyResult carries the external labels for one message.
type ClassifyResult struct {
	ID     int64    `json:"id"`
	Labels []string `json:"labels"`
}

// LabelClassifier is the external categorization backend.
type LabelClassifier interface {
	// ClassifyBatch classifies all items in a single request.
	ClassifyBatch(ctx context.Context, items []ClassifyItem) ([]ClassifyResult, error)
	// Ping is a lightweight liveness probe, usable to short-circuit
	// before submitting a larger batch.
	Ping(ctx context.Context) error
}
