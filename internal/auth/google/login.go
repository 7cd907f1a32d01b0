package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/cli/browser"
	"github.com/pysugar/antigravity-switch/internal/db/models"
)

// AccountSink stores the identity produced by a completed login.
type AccountSink interface {
	UpsertOAuth(info models.UserInfo, tokens models.TokenData) (models.Account, error)
}

// LoginOptions configures a LoginFlow.
type LoginOptions struct {
	CallbackAddr string
	CallbackPath string
	// OpenBrowser launches the system browser on the consent page.
	OpenBrowser bool
}

// LoginFlow drives the interactive authorization-code login: bind the
// callback listener, send the user to Google, exchange the code, fetch the
// profile and upsert the account.
type LoginFlow struct {
	client *Client
	sink   AccountSink
	addr   string
	path   string
	open   func(url string) error
}

// NewLoginFlow returns a flow that stores logins in sink.
func NewLoginFlow(client *Client, sink AccountSink, opts LoginOptions) *LoginFlow {
	f := &LoginFlow{
		client: client,
		sink:   sink,
		addr:   opts.CallbackAddr,
		path:   opts.CallbackPath,
	}
	if opts.OpenBrowser {
		f.open = browser.OpenURL
	}
	return f
}

// PendingLogin is a login waiting for its browser redirect.
type PendingLogin struct {
	URL string

	flow     *LoginFlow
	state    string
	listener *CallbackListener
}

// Begin binds the callback listener and returns the consent URL. The
// listener stays up until Complete or Cancel is called.
func (f *LoginFlow) Begin(ctx context.Context) (*PendingLogin, error) {
	if !f.client.Configured() {
		return nil, ErrConfigurationMissing
	}

	state, err := newState()
	if err != nil {
		return nil, err
	}
	authURL, err := f.client.AuthCodeURL(state)
	if err != nil {
		return nil, err
	}

	l, err := ListenCallback(f.addr, f.path)
	if err != nil {
		return nil, err
	}

	if f.open != nil {
		if err := f.open(authURL); err != nil {
			log.Printf("⚠️ [OAuth] Could not open browser: %v", err)
		}
	}
	log.Printf("🔐 [OAuth] Waiting for Google login at %s", authURL)

	return &PendingLogin{
		URL:      authURL,
		flow:     f,
		state:    state,
		listener: l,
	}, nil
}

// Complete waits for the redirect and finishes the login.
func (p *PendingLogin) Complete(ctx context.Context) (models.Account, error) {
	res, err := p.listener.Wait(ctx)
	if err != nil {
		return models.Account{}, err
	}
	if res.State != "" && res.State != p.state {
		return models.Account{}, fmt.Errorf("%w: state mismatch", ErrOAuthCallback)
	}
	return p.flow.CompleteWithCode(ctx, res.Code)
}

// Cancel releases the callback port without waiting.
func (p *PendingLogin) Cancel() {
	_ = p.listener.Close()
}

// CompleteWithCode finishes a login from an authorization code obtained out
// of band.
func (f *LoginFlow) CompleteWithCode(ctx context.Context, code string) (models.Account, error) {
	tokens, err := f.client.Exchange(ctx, code)
	if err != nil {
		return models.Account{}, err
	}
	info, err := f.client.FetchUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return models.Account{}, err
	}

	acc, err := f.sink.UpsertOAuth(info, tokens)
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to save account: %w", err)
	}
	log.Printf("✅ [OAuth] Logged in %s (ID: %s)", acc.Email, acc.ID)
	return acc, nil
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
