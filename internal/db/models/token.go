package models

// TokenData is the result of a code exchange or refresh. It is never
// persisted as-is; the access token and computed expiry are folded into an
// Account.
type TokenData struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds
	IDToken      string
}

// UserInfo is the subset of the Google profile used to populate an Account.
type UserInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}
