// Package storage implements the attachment content store on the local
// filesystem.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mailsync_server/core/port/out"
)

// =============================================================================
// Disk Content Store
// =============================================================================

// DiskStore writes attachment payloads under
// <root>/<accountID>/<category>/<name>. Callers supply unique names, so
// writes never collide.
type DiskStore struct {
	root string
}

var _ out.ContentStore = (*DiskStore)(nil)

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content store root %s: %w", root, err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) Save(ctx context.Context, data []byte, name string, accountID int64, category string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, fmt.Sprintf("%d", accountID), category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
