package out

import "context"

// SyncLease is a short-lived advisory lock keyed by account id, taken
// before a sync run so two overlapping syncs of the same account cannot
// race on dedup and double-insert.
type SyncLease interface {
	// Acquire returns false when another holder owns the lease.
	Acquire(ctx context.Context, accountID int64) (bool, error)
	Release(ctx context.Context, accountID int64) error
}
