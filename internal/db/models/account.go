package models

import "strings"

// Account is one Google identity the user can switch Antigravity to.
// Timestamps are unix milliseconds; zero means "never" or "unknown".
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Picture      string `json:"picture,omitempty"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	IsActive     bool   `json:"is_active"`
	AddedAt      int64  `json:"added_at"`
	LastSwitched int64  `json:"last_switched,omitempty"`
	LastChecked  int64  `json:"last_checked,omitempty"`
}

// DisplayName returns Name, or the local part of Email when Name is empty.
func (a Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return LocalPart(a.Email)
}

// LocalPart returns the part of an email address before '@'.
func LocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "Unknown"
	}
	return local
}
