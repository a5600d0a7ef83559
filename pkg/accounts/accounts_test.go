package accounts_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/cascadehq/cascade/pkg/accounts"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, store *file.Persistence, account *models.ConnectedAccount) {
	t.Helper()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	require.NoError(t, store.Accounts().SaveAccount(context.Background(), account))
}

func TestAccountLookup(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	service := accounts.NewService(store.Accounts(), slog.Default())

	seedAccount(t, store, &models.ConnectedAccount{
		UserID:      "user-1",
		Provider:    models.ProviderSlack,
		AccessToken: "xoxb-1",
	})

	account, err := service.Account(context.Background(), "user-1", models.ProviderSlack)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-1", account.AccessToken)

	_, err = service.Account(context.Background(), "user-2", models.ProviderSlack)
	assert.True(t, persistence.IsNotFound(err))
}

func TestGoogleAccountFreshTokenSkipsRefresh(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	service := accounts.NewService(store.Accounts(), slog.Default())

	expiry := time.Now().Add(time.Hour).UTC()

	seedAccount(t, store, &models.ConnectedAccount{
		UserID:      "user-1",
		Provider:    models.ProviderGoogle,
		AccessToken: "ya29-fresh",
		ExpiresAt:   &expiry,
	})

	account, err := service.GoogleAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ya29-fresh", account.AccessToken)
}

func TestGoogleAccountWithoutExpiryNeverRefreshes(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	service := accounts.NewService(store.Accounts(), slog.Default())

	seedAccount(t, store, &models.ConnectedAccount{
		UserID:      "user-1",
		Provider:    models.ProviderGoogle,
		AccessToken: "ya29-static",
	})

	account, err := service.GoogleAccount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ya29-static", account.AccessToken)
}

func TestTokenExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&models.ConnectedAccount{ExpiresAt: &past}).TokenExpired(now))
	assert.False(t, (&models.ConnectedAccount{ExpiresAt: &future}).TokenExpired(now))
	assert.False(t, (&models.ConnectedAccount{}).TokenExpired(now))
}
