// Package accounts resolves connected-account credentials for provider
// node handlers, refreshing expired OAuth tokens and persisting the
// refreshed credentials.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"golang.org/x/oauth2"
)

// googleEndpoint is declared inline to avoid depending on the metadata
// helpers pulled in by the oauth2/google package.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// Service looks up connected accounts and keeps their tokens fresh.
type Service struct {
	repo   persistence.AccountRepository
	logger *slog.Logger
	google *oauth2.Config
	now    func() time.Time
}

func NewService(repo persistence.AccountRepository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With("module", "accounts"),
		google: &oauth2.Config{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			Endpoint:     googleEndpoint,
		},
		now: time.Now,
	}
}

// Account returns the connected account for (userID, provider) without
// touching its tokens.
func (s *Service) Account(ctx context.Context, userID, provider string) (*models.ConnectedAccount, error) {
	return s.repo.AccountByUserAndProvider(ctx, userID, provider)
}

// GoogleAccount returns the user's Google account with a usable access
// token, lazily refreshing and persisting it when expired.
func (s *Service) GoogleAccount(ctx context.Context, userID string) (*models.ConnectedAccount, error) {
	account, err := s.repo.AccountByUserAndProvider(ctx, userID, models.ProviderGoogle)
	if err != nil {
		return nil, err
	}

	if !account.TokenExpired(s.now()) {
		return account, nil
	}

	token := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
	}
	if account.ExpiresAt != nil {
		token.Expiry = *account.ExpiresAt
	}

	fresh, err := s.google.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh google access token: %w", err)
	}

	account.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		account.RefreshToken = fresh.RefreshToken
	}

	if !fresh.Expiry.IsZero() {
		expiry := fresh.Expiry.UTC()

		account.ExpiresAt = &expiry
	}

	account.UpdatedAt = s.now().UTC()

	err = s.repo.SaveAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	s.logger.InfoContext(ctx, "Refreshed google access token", "user_id", userID)

	return account, nil
}
