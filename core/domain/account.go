package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderGoogle  Provider = "google" // DB enum: google, outlook
	ProviderOutlook Provider = "outlook"
)

// MailAccount is an OAuth-connected mailbox owned by exactly one user.
// Token fields are mutated by the token service, LastSyncAt by the sync
// orchestrator; nothing else writes to this struct.
type MailAccount struct {
	ID           int64     `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Provider     Provider  `json:"provider" db:"provider"`
	Email        string    `json:"email" db:"email"`
	IsDefault    bool      `json:"is_default" db:"is_default"`

	AccessToken           string     `json:"-" db:"access_token"`
	RefreshToken          string     `json:"-" db:"refresh_token"`
	TokenExpiresAt        time.Time  `json:"token_expires_at" db:"token_expires_at"`
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at,omitempty" db:"refresh_token_expires_at"`
	IsTokenValid          bool       `json:"is_token_valid" db:"is_token_valid"`

	LastSyncAt *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// HasUsableAccessToken reports whether the stored access token can be used
// as-is, without a refresh round-trip.
func (a *MailAccount) HasUsableAccessToken(now time.Time) bool {
	return a.IsTokenValid && a.AccessToken != "" && now.Before(a.TokenExpiresAt)
}

// HasUsableRefreshToken reports whether a refresh attempt is worth making.
func (a *MailAccount) HasUsableRefreshToken(now time.Time) bool {
	if a.RefreshToken == "" {
		return false
	}
	if a.RefreshTokenExpiresAt != nil && !now.Before(*a.RefreshTokenExpiresAt) {
		return false
	}
	return true
}

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*MailAccount, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*MailAccount, error)
	ListSyncable(ctx context.Context) ([]*MailAccount, error)
	Create(ctx context.Context, account *MailAccount) error
	Update(ctx context.Context, account *MailAccount) error
	UpdateTokens(ctx context.Context, account *MailAccount) error
	UpdateLastSyncAt(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}
