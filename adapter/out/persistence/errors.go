package persistence

import (
	"database/sql"
	"errors"

	"mailsync_server/core/domain"
)

// wrapNotFound converts sql.ErrNoRows into the domain sentinel so
// services never import database/sql.
func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
