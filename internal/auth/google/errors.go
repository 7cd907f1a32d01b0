package google

import "errors"

var (
	ErrConfigurationMissing = errors.New("OAuth client is not configured: set CLIENT_ID and CLIENT_SECRET " +
		"in the environment, in .env or config.yaml inside the data directory, " +
		"or embed them at build time with -ldflags")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrTokenRefreshFailed  = errors.New("token refresh failed")
	ErrProfileFetchFailed  = errors.New("failed to fetch user info")
	ErrOAuthTimeout        = errors.New("OAuth callback timeout")
	ErrOAuthCallback       = errors.New("OAuth callback error")
)
