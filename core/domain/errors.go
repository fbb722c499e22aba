package domain

import "errors"

// ErrNotFound is returned by repositories when no row matches. Callers
// branch on it instead of treating absence as a hard failure.
var ErrNotFound = errors.New("record not found")
