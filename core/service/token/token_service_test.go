package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailsync_server/core/domain"

	"golang.org/x/oauth2"
)

func testAccount() *domain.MailAccount {
	return &domain.MailAccount{
		ID:           1,
		Provider:     domain.ProviderGoogle,
		Email:        "user@example.com",
		AccessToken:  "old-access",
		RefreshToken: "refresh-1",
		IsTokenValid: true,
	}
}

func newTestService(tokenURL string, persist PersistFunc) *Service {
	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	svc := NewService(map[domain.Provider]*oauth2.Config{domain.ProviderGoogle: cfg}, persist)
	return svc
}

func TestGetValidAccessToken_StoredTokenStillValid(t *testing.T) {
	persisted := false
	svc := newTestService("http://invalid.test/token", func(ctx context.Context, a *domain.MailAccount) error {
		persisted = true
		return nil
	})

	account := testAccount()
	account.TokenExpiresAt = time.Now().Add(30 * time.Minute)

	token, ok := svc.GetValidAccessToken(context.Background(), account)
	if !ok {
		t.Fatal("expected ok=true for unexpired token")
	}
	if token != "old-access" {
		t.Errorf("expected stored token, got %q", token)
	}
	if persisted {
		t.Error("should not persist when no refresh happened")
	}
}

func TestGetValidAccessToken_RefreshesExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("refresh_token"); got != "refresh-1" {
			t.Errorf("expected refresh_token refresh-1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-2"}`))
	}))
	defer srv.Close()

	var persisted *domain.MailAccount
	svc := newTestService(srv.URL, func(ctx context.Context, a *domain.MailAccount) error {
		persisted = a
		return nil
	})

	account := testAccount()
	account.TokenExpiresAt = time.Now().Add(-time.Hour)

	token, ok := svc.GetValidAccessToken(context.Background(), account)
	if !ok {
		t.Fatal("expected ok=true after successful refresh")
	}
	if token != "new-access" {
		t.Errorf("expected new-access, got %q", token)
	}
	if persisted == nil {
		t.Fatal("refreshed token not persisted")
	}
	if persisted.RefreshToken != "refresh-2" {
		t.Errorf("rotated refresh token not stored, got %q", persisted.RefreshToken)
	}
	if !persisted.IsTokenValid {
		t.Error("account should remain valid after refresh")
	}
	if persisted.TokenExpiresAt.Before(time.Now().Add(30 * time.Minute)) {
		t.Error("new expiry not recorded")
	}
}

func TestGetValidAccessToken_RefreshFailureInvalidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	var persisted *domain.MailAccount
	svc := newTestService(srv.URL, func(ctx context.Context, a *domain.MailAccount) error {
		persisted = a
		return nil
	})

	account := testAccount()
	account.TokenExpiresAt = time.Now().Add(-time.Hour)

	_, ok := svc.GetValidAccessToken(context.Background(), account)
	if ok {
		t.Fatal("expected ok=false on invalid_grant")
	}
	if persisted == nil {
		t.Fatal("invalidation not persisted")
	}
	if persisted.IsTokenValid {
		t.Error("IsTokenValid should be false after failed refresh")
	}
}

func TestGetValidAccessToken_NoRefreshToken(t *testing.T) {
	var persisted *domain.MailAccount
	svc := newTestService("http://invalid.test/token", func(ctx context.Context, a *domain.MailAccount) error {
		persisted = a
		return nil
	})

	account := testAccount()
	account.TokenExpiresAt = time.Now().Add(-time.Hour)
	account.RefreshToken = ""

	_, ok := svc.GetValidAccessToken(context.Background(), account)
	if ok {
		t.Fatal("expected ok=false with no refresh token")
	}
	if persisted == nil || persisted.IsTokenValid {
		t.Error("account should be invalidated and persisted")
	}
}

func TestGetValidAccessToken_ExpiredRefreshToken(t *testing.T) {
	svc := newTestService("http://invalid.test/token", func(ctx context.Context, a *domain.MailAccount) error {
		return nil
	})

	account := testAccount()
	account.TokenExpiresAt = time.Now().Add(-time.Hour)
	past := time.Now().Add(-24 * time.Hour)
	account.RefreshTokenExpiresAt = &past

	if _, ok := svc.GetValidAccessToken(context.Background(), account); ok {
		t.Fatal("expected ok=false when refresh token itself expired")
	}
	if account.IsTokenValid {
		t.Error("account should be invalidated")
	}
}
