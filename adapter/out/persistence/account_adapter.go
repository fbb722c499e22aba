// Package persistence provides PostgreSQL adapters implementing the
// domain repository interfaces.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/pkg/crypto"
	"mailsync_server/pkg/logger"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// =============================================================================
// Account Adapter (PostgreSQL)
// =============================================================================

// AccountAdapter implements domain.AccountRepository. OAuth tokens are
// encrypted at rest; plaintext never reaches the mail_accounts table.
type AccountAdapter struct {
	db *sqlx.DB
}

var _ domain.AccountRepository = (*AccountAdapter)(nil)

func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

const accountSelectColumns = `
	id, user_id, provider, email, is_default,
	access_token, refresh_token, token_expires_at, refresh_token_expires_at, is_token_valid,
	last_sync_at, created_at, updated_at`

type accountRow struct {
	ID        int64     `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Provider  string    `db:"provider"`
	Email     string    `db:"email"`
	IsDefault bool      `db:"is_default"`

	AccessToken           string       `db:"access_token"`
	RefreshToken          string       `db:"refresh_token"`
	TokenExpiresAt        time.Time    `db:"token_expires_at"`
	RefreshTokenExpiresAt sql.NullTime `db:"refresh_token_expires_at"`
	IsTokenValid          bool         `db:"is_token_valid"`

	LastSyncAt sql.NullTime `db:"last_sync_at"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

func (r *accountRow) toDomain() *domain.MailAccount {
	account := &domain.MailAccount{
		ID:             r.ID,
		UserID:         r.UserID,
		Provider:       domain.Provider(r.Provider),
		Email:          r.Email,
		IsDefault:      r.IsDefault,
		AccessToken:    decryptToken(r.AccessToken),
		RefreshToken:   decryptToken(r.RefreshToken),
		TokenExpiresAt: r.TokenExpiresAt,
		IsTokenValid:   r.IsTokenValid,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.RefreshTokenExpiresAt.Valid {
		t := r.RefreshTokenExpiresAt.Time
		account.RefreshTokenExpiresAt = &t
	}
	if r.LastSyncAt.Valid {
		t := r.LastSyncAt.Time
		account.LastSyncAt = &t
	}
	return account
}

// decryptToken tolerates legacy plaintext rows written before
// encryption-at-rest was enabled.
func decryptToken(stored string) string {
	if stored == "" || !crypto.IsEncrypted(stored) {
		return stored
	}
	plain, err := crypto.DecryptToken(stored)
	if err != nil {
		logger.Error("[AccountAdapter.decryptToken] Failed to decrypt stored token: %v", err)
		return ""
	}
	return plain
}

func encryptToken(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	return crypto.EncryptToken(plain)
}

// =============================================================================
// CRUD Operations
// =============================================================================

func (a *AccountAdapter) GetByID(ctx context.Context, id int64) (*domain.MailAccount, error) {
	var row accountRow
	query := fmt.Sprintf(`SELECT %s FROM mail_accounts WHERE id = $1`, accountSelectColumns)
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toDomain(), nil
}

func (a *AccountAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.MailAccount, error) {
	var rows []accountRow
	query := fmt.Sprintf(`SELECT %s FROM mail_accounts WHERE user_id = $1 ORDER BY is_default DESC, id`, accountSelectColumns)
	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}
	accounts := make([]*domain.MailAccount, len(rows))
	for i := range rows {
		accounts[i] = rows[i].toDomain()
	}
	return accounts, nil
}

// ListSyncable returns accounts that still have a working token; the
// sync sweep skips accounts awaiting re-authentication.
func (a *AccountAdapter) ListSyncable(ctx context.Context) ([]*domain.MailAccount, error) {
	var rows []accountRow
	query := fmt.Sprintf(`SELECT %s FROM mail_accounts WHERE is_token_valid = true ORDER BY last_sync_at ASC NULLS FIRST`, accountSelectColumns)
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	accounts := make([]*domain.MailAccount, len(rows))
	for i := range rows {
		accounts[i] = rows[i].toDomain()
	}
	return accounts, nil
}

func (a *AccountAdapter) Create(ctx context.Context, account *domain.MailAccount) error {
	encAccess, err := encryptToken(account.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := encryptToken(account.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	query := `
		INSERT INTO mail_accounts (
			user_id, provider, email, is_default,
			access_token, refresh_token, token_expires_at, refresh_token_expires_at, is_token_valid
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return a.db.QueryRowxContext(ctx, query,
		account.UserID, account.Provider, account.Email, account.IsDefault,
		encAccess, encRefresh, account.TokenExpiresAt, account.RefreshTokenExpiresAt, account.IsTokenValid,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
}

func (a *AccountAdapter) Update(ctx context.Context, account *domain.MailAccount) error {
	query := `
		UPDATE mail_accounts SET
			email = $1, is_default = $2, updated_at = NOW()
		WHERE id = $3`

	result, err := a.db.ExecContext(ctx, query, account.Email, account.IsDefault, account.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateTokens persists only the token tier of the account. Used as the
// token service's persistence callback.
func (a *AccountAdapter) UpdateTokens(ctx context.Context, account *domain.MailAccount) error {
	encAccess, err := encryptToken(account.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := encryptToken(account.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	query := `
		UPDATE mail_accounts SET
			access_token = $1, refresh_token = $2,
			token_expires_at = $3, refresh_token_expires_at = $4,
			is_token_valid = $5, updated_at = NOW()
		WHERE id = $6`

	result, err := a.db.ExecContext(ctx, query,
		encAccess, encRefresh,
		account.TokenExpiresAt, account.RefreshTokenExpiresAt,
		account.IsTokenValid, account.ID,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (a *AccountAdapter) UpdateLastSyncAt(ctx context.Context, id int64, at time.Time) error {
	result, err := a.db.ExecContext(ctx,
		`UPDATE mail_accounts SET last_sync_at = $1, updated_at = NOW() WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (a *AccountAdapter) Delete(ctx context.Context, id int64) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM mail_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
