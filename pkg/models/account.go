package models

import "time"

// Connected-account providers for third-party node handlers.
const (
	ProviderSlack  = "slack"
	ProviderGoogle = "google"
)

// ConnectedAccount holds OAuth credentials linking a user to a provider.
// Handlers look accounts up by (user_id, provider); the Gmail handler
// refreshes and persists the access token when it has expired.
type ConnectedAccount struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Provider     string     `json:"provider"`
	Email        string     `json:"email,omitempty"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TokenExpired reports whether the access token needs a refresh before use.
func (a *ConnectedAccount) TokenExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}
