package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pysugar/antigravity-switch/internal/db/models"
	"github.com/pysugar/antigravity-switch/internal/util"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

const (
	// PlaceholderClientID is the value shipped in unconfigured builds.
	PlaceholderClientID = "YOUR_CLIENT_ID"

	// DefaultRedirectURL must match the redirect registered for the client.
	DefaultRedirectURL = "http://localhost:3847/auth/callback"

	// UserInfoURL is Google's v2 profile endpoint.
	UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	defaultExpiresIn = 3600
	requestTimeout   = 30 * time.Second
)

// Scopes requested at login. cloud-platform is what Antigravity itself asks for.
var Scopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/cloud-platform",
}

// Credentials is an OAuth client id/secret pair.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

func (c Credentials) usable() bool {
	id := strings.TrimSpace(c.ClientID)
	return id != "" && id != PlaceholderClientID
}

// ResolveCredentials picks the build-time embedded pair when it is set and
// not the placeholder, otherwise the runtime pair. Neither usable yields
// ErrConfigurationMissing.
func ResolveCredentials(embedded, runtime Credentials) (Credentials, error) {
	if embedded.usable() {
		return embedded, nil
	}
	if runtime.usable() {
		return runtime, nil
	}
	return Credentials{}, ErrConfigurationMissing
}

// Config configures a Client. Zero endpoint fields fall back to Google.
type Config struct {
	Credentials Credentials
	RedirectURL string
	Endpoint    oauth2.Endpoint
	UserInfoURL string
	HTTPClient  *http.Client
}

// Client performs the authorization-code and refresh-token grants against
// Google and fetches the user profile.
type Client struct {
	creds       Credentials
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewClient builds a Client. It never fails; unusable credentials surface as
// ErrConfigurationMissing from each operation instead.
func NewClient(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint.AuthURL = googleOAuth.Endpoint.AuthURL
	}
	if endpoint.TokenURL == "" {
		endpoint.TokenURL = googleOAuth.Endpoint.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	redirect := cfg.RedirectURL
	if redirect == "" {
		redirect = DefaultRedirectURL
	}
	userInfo := cfg.UserInfoURL
	if userInfo == "" {
		userInfo = UserInfoURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Client{
		creds: cfg.Credentials,
		oauth: &oauth2.Config{
			ClientID:     cfg.Credentials.ClientID,
			ClientSecret: cfg.Credentials.ClientSecret,
			RedirectURL:  redirect,
			Scopes:       Scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfo,
		httpClient:  httpClient,
	}
}

// Configured reports whether the client has usable credentials.
func (c *Client) Configured() bool {
	return c.creds.usable()
}

// RedirectURL returns the redirect URI sent to the provider.
func (c *Client) RedirectURL() string {
	return c.oauth.RedirectURL
}

// AuthCodeURL returns the consent page URL. Offline access with forced
// consent makes Google issue a refresh token on every login.
func (c *Client) AuthCodeURL(state string) (string, error) {
	if !c.Configured() {
		return "", ErrConfigurationMissing
	}
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for tokens. Both an access token and
// a refresh token must be present in the response.
func (c *Client) Exchange(ctx context.Context, code string) (models.TokenData, error) {
	if !c.Configured() {
		return models.TokenData{}, ErrConfigurationMissing
	}

	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return models.TokenData{}, fmt.Errorf("%w: %s", ErrTokenExchangeFailed, providerMessage(err))
	}
	if tok.RefreshToken == "" {
		return models.TokenData{}, fmt.Errorf("%w: missing refresh_token", ErrTokenExchangeFailed)
	}
	return tokenData(tok, tok.RefreshToken), nil
}

// Refresh obtains a new access token. The returned TokenData always carries
// the input refresh token; a rotated one from the provider is only logged.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenData, error) {
	if !c.Configured() {
		return models.TokenData{}, ErrConfigurationMissing
	}

	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return models.TokenData{}, fmt.Errorf("%w: %s", ErrTokenRefreshFailed, providerMessage(err))
	}
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		log.Printf("🔄 [OAuth] Provider rotated refresh token (%s); keeping stored token",
			util.MaskToken(tok.RefreshToken))
	}
	return tokenData(tok, refreshToken), nil
}

// FetchUserInfo returns the profile behind accessToken.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (models.UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return models.UserInfo{}, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.UserInfo{}, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.UserInfo{}, fmt.Errorf("%w: read body: %v", ErrProfileFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.UserInfo{}, fmt.Errorf("%w: %d %s", ErrProfileFetchFailed,
			resp.StatusCode, util.TruncateBytes(body))
	}

	var info models.UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return models.UserInfo{}, fmt.Errorf("%w: decode: %v", ErrProfileFetchFailed, err)
	}
	if info.Email == "" {
		return models.UserInfo{}, fmt.Errorf("%w: missing email", ErrProfileFetchFailed)
	}
	return info, nil
}

// EmailFromIDToken reads the email claim of an ID token without verifying
// its signature. It is only used to label an account; it grants nothing.
func EmailFromIDToken(idToken string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return "", fmt.Errorf("parse id_token: %w", err)
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return "", errors.New("id_token has no email claim")
	}
	return email, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func tokenData(tok *oauth2.Token, refreshToken string) models.TokenData {
	expiresIn := int64(defaultExpiresIn)
	if !tok.Expiry.IsZero() {
		if secs := time.Until(tok.Expiry).Round(time.Second); secs > 0 {
			expiresIn = int64(secs / time.Second)
		}
	}
	idToken, _ := tok.Extra("id_token").(string)
	return models.TokenData{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		IDToken:      idToken,
	}
}

// providerMessage prefers the raw provider body over the oauth2 wrapper text.
func providerMessage(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && len(re.Body) > 0 {
		return util.TruncateBytes(re.Body)
	}
	return err.Error()
}
