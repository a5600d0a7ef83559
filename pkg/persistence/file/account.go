package file

import (
	"context"
	"encoding/json"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

const accountsDir = "accounts"

// AccountRepository stores connected accounts as JSON files.
type AccountRepository struct {
	store *Persistence
}

func (r *AccountRepository) AccountByUserAndProvider(ctx context.Context, userID, provider string) (*models.ConnectedAccount, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var found *models.ConnectedAccount

	err := r.store.readAll(accountsDir, func(payload []byte) error {
		var account models.ConnectedAccount

		err := json.Unmarshal(payload, &account)
		if err != nil {
			return err
		}

		if account.UserID == userID && account.Provider == provider {
			found = &account
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, persistence.ErrAccountNotFound
	}

	return found, nil
}

func (r *AccountRepository) SaveAccount(ctx context.Context, account *models.ConnectedAccount) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(accountsDir, account.ID, account)
}
