package model

import "time"

// Credential is the stored OAuth grant for one user's linked Gmail account.
// There is at most one per UserID.
type Credential struct {
	UserID       string    `json:"user_id" db:"user_id"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	TokenExpiry  time.Time `json:"token_expiry" db:"token_expiry"`
	Email        string    `json:"email" db:"email"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the access token expiry lies strictly before now.
func (c *Credential) Expired(now time.Time) bool {
	return c.TokenExpiry.Before(now)
}

// Status is the connection projection returned to the dashboard.
type Status struct {
	Connected bool       `json:"connected"`
	Email     string     `json:"email,omitempty"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
}

// StatusFromCredential projects a credential. A nil credential means
// the account is not linked.
func StatusFromCredential(c *Credential) Status {
	if c == nil {
		return Status{}
	}
	lastSync := c.UpdatedAt
	return Status{
		Connected: true,
		Email:     c.Email,
		LastSync:  &lastSync,
	}
}
