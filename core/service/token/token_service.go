// Package token owns the OAuth token lifecycle for mail accounts.
package token

import (
	"context"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/pkg/logger"

	"golang.org/x/oauth2"
)

// PersistFunc saves token-field changes on an account. Injected so the
// service stays free of a direct storage dependency.
type PersistFunc func(ctx context.Context, account *domain.MailAccount) error

// Service resolves usable access tokens, refreshing them against the
// provider's token endpoint when the stored one has expired.
//
// Token failures are never surfaced as errors: a dead refresh path flips
// IsTokenValid to false and the caller observes an invalidated account.
type Service struct {
	configs map[domain.Provider]*oauth2.Config
	persist PersistFunc

	now func() time.Time
}

func NewService(configs map[domain.Provider]*oauth2.Config, persist PersistFunc) *Service {
	return &Service{
		configs: configs,
		persist: persist,
		now:     time.Now,
	}
}

// GetValidAccessToken returns an access token for the account, or
// ok=false when the account requires user re-authentication. Callers
// must not retry on ok=false.
func (s *Service) GetValidAccessToken(ctx context.Context, account *domain.MailAccount) (string, bool) {
	now := s.now()

	// Stored token still good, no network call.
	if account.HasUsableAccessToken(now) {
		return account.AccessToken, true
	}

	if !account.HasUsableRefreshToken(now) {
		logger.Warn("[TokenService.GetValidAccessToken] No refresh path for account %d, invalidating", account.ID)
		s.invalidate(ctx, account)
		return "", false
	}

	cfg, ok := s.configs[account.Provider]
	if !ok || cfg == nil {
		logger.Error("[TokenService.GetValidAccessToken] No OAuth config for provider %s", account.Provider)
		s.invalidate(ctx, account)
		return "", false
	}

	// Force a refresh by presenting only the refresh token.
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: account.RefreshToken})
	newToken, err := src.Token()
	if err != nil {
		logger.Warn("[TokenService.GetValidAccessToken] Refresh failed for account %d: %v", account.ID, err)
		s.invalidate(ctx, account)
		return "", false
	}

	account.AccessToken = newToken.AccessToken
	account.TokenExpiresAt = newToken.Expiry.UTC()
	if newToken.RefreshToken != "" && newToken.RefreshToken != account.RefreshToken {
		// Provider rotated the refresh token.
		account.RefreshToken = newToken.RefreshToken
	}
	account.IsTokenValid = true
	account.UpdatedAt = s.now()

	if err := s.persist(ctx, account); err != nil {
		// Token itself is usable; losing the persisted copy only costs an
		// extra refresh on the next run.
		logger.Error("[TokenService.GetValidAccessToken] Failed to persist refreshed token for account %d: %v", account.ID, err)
	}

	logger.Debug("[TokenService.GetValidAccessToken] Token refreshed for account %d", account.ID)
	return account.AccessToken, true
}

func (s *Service) invalidate(ctx context.Context, account *domain.MailAccount) {
	if !account.IsTokenValid {
		return
	}
	account.IsTokenValid = false
	account.UpdatedAt = s.now()
	if err := s.persist(ctx, account); err != nil {
		logger.Error("[TokenService.invalidate] Failed to persist invalidation for account %d: %v", account.ID, err)
	}
}
