package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// AccountRepository handles connected_account rows.
type AccountRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *AccountRepository) AccountByUserAndProvider(ctx context.Context, userID, provider string) (*models.ConnectedAccount, error) {
	query := `
		SELECT id, user_id, provider, email, access_token, refresh_token, expires_at, created_at, updated_at
		FROM connected_accounts
		WHERE user_id = $1 AND provider = $2
	`

	var (
		account      models.ConnectedAccount
		email        sql.NullString
		refreshToken sql.NullString
		expiresAt    sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, userID, provider).Scan(
		&account.ID,
		&account.UserID,
		&account.Provider,
		&email,
		&account.AccessToken,
		&refreshToken,
		&expiresAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrAccountNotFound
		}

		return nil, fmt.Errorf("failed to query connected account: %w", err)
	}

	account.Email = email.String
	account.RefreshToken = refreshToken.String

	if expiresAt.Valid {
		t := expiresAt.Time

		account.ExpiresAt = &t
	}

	return &account, nil
}

func (r *AccountRepository) SaveAccount(ctx context.Context, account *models.ConnectedAccount) error {
	query := `
		INSERT INTO connected_accounts (id, user_id, provider, email, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			email = EXCLUDED.email
		  , access_token = EXCLUDED.access_token
		  , refresh_token = EXCLUDED.refresh_token
		  , expires_at = EXCLUDED.expires_at
		  , updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.UserID,
		account.Provider,
		nullableString(account.Email),
		account.AccessToken,
		nullableString(account.RefreshToken),
		account.ExpiresAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "SaveAccount", ID: account.ID, Err: err}
	}

	return nil
}
