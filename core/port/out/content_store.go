package out

import "context"

// ContentStore persists attachment payloads outside the database.
type ContentStore interface {
	// Save writes data under the account scope and category and returns
	// the stored path.
	Save(ctx context.Context, data []byte, name string, accountID int64, category string) (string, error)
}
