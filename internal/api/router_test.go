package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pysugar/antigravity-switch/internal/accounts"
	"github.com/pysugar/antigravity-switch/internal/api/handlers"
	"github.com/pysugar/antigravity-switch/internal/auth/google"
	"github.com/pysugar/antigravity-switch/internal/auth/token"
	"github.com/pysugar/antigravity-switch/internal/db"
	"github.com/pysugar/antigravity-switch/internal/db/models"
	"github.com/pysugar/antigravity-switch/internal/discovery"
	"github.com/pysugar/antigravity-switch/internal/quota"
	"github.com/pysugar/antigravity-switch/internal/switcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeRefresher struct {
	idToken string
	err     error
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (models.TokenData, error) {
	if f.err != nil {
		return models.TokenData{}, f.err
	}
	return models.TokenData{AccessToken: "at-" + refreshToken, RefreshToken: refreshToken, ExpiresIn: 3600, IDToken: f.idToken}, nil
}

type fakeQuota struct {
	store *accounts.Store
}

func (f *fakeQuota) All(_ context.Context) ([]quota.AccountQuota, error) {
	all, err := f.store.Load()
	if err != nil {
		return nil, err
	}
	out := make([]quota.AccountQuota, len(all))
	for i, acc := range all {
		out[i] = quota.AccountQuota{ID: acc.ID, Email: acc.Email, IsActive: acc.IsActive}
	}
	return out, nil
}

func (f *fakeQuota) ForAccount(_ context.Context, id string) (quota.AccountQuota, error) {
	acc, err := f.store.Get(id)
	if err != nil {
		return quota.AccountQuota{}, err
	}
	if acc == nil {
		return quota.AccountQuota{}, fmt.Errorf("%w: %s", accounts.ErrAccountNotFound, id)
	}
	return quota.AccountQuota{
		ID:    acc.ID,
		Email: acc.Email,
		Quota: &quota.Info{Models: []quota.ModelQuota{{Name: "gemini-3-pro-high", Percentage: 80}}},
	}, nil
}

type fakeSwitcher struct {
	store   *accounts.Store
	partial bool
}

func (f *fakeSwitcher) Switch(_ context.Context, id string) (switcher.Result, error) {
	acc, err := f.store.Get(id)
	if err != nil {
		return switcher.Result{}, err
	}
	if acc == nil {
		return switcher.Result{}, fmt.Errorf("%w: %s", accounts.ErrAccountNotFound, id)
	}
	if f.partial {
		return switcher.Result{
			Outcome:   switcher.PartialFailure,
			AccountID: id,
			Email:     acc.Email,
			Message:   "Database injection failed",
			Cause:     fmt.Errorf("%w: disk I/O error", switcher.ErrInjectionFailed),
		}, nil
	}
	if err := f.store.SetActive(id); err != nil {
		return switcher.Result{}, err
	}
	return switcher.Result{Outcome: switcher.Success, AccountID: id, Email: acc.Email}, nil
}

type fakeStatus struct {
	status *db.AuthStatus
	err    error
}

func (f *fakeStatus) ReadAuthStatus(context.Context) (*db.AuthStatus, error) {
	return f.status, f.err
}

type fixture struct {
	t        *testing.T
	srv      *httptest.Server
	store    *accounts.Store
	switcher *fakeSwitcher
	refresh  *fakeRefresher
	status   *fakeStatus
	home     string
	cbAddr   string
	token    string
}

func newGoogleFake(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			_ = r.ParseForm()
			if r.PostForm.Get("code") == "bad-code" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
			fmt.Fprint(w, `{"access_token":"at-oauth","refresh_token":"rt-oauth","expires_in":3600,"token_type":"Bearer"}`)
		case "/userinfo":
			fmt.Fprint(w, `{"email":"oauth@example.com","name":"OAuth User"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func newFixture(t *testing.T, apiToken string) *fixture {
	t.Helper()
	dataDir := t.TempDir()
	store := accounts.NewStore(filepath.Join(dataDir, accounts.FileName))

	g := newGoogleFake(t)
	client := google.NewClient(google.Config{
		Credentials: google.Credentials{ClientID: "cid.apps.googleusercontent.com", ClientSecret: "cs"},
		Endpoint:    oauth2.Endpoint{AuthURL: g.URL + "/auth", TokenURL: g.URL + "/token"},
		UserInfoURL: g.URL + "/userinfo",
	})
	cbAddr := freeAddr(t)
	flow := google.NewLoginFlow(client, store, google.LoginOptions{CallbackAddr: cbAddr})
	oauthHandlers := handlers.NewOAuthHandlers(flow)
	t.Cleanup(oauthHandlers.Close)

	f := &fixture{
		t:        t,
		store:    store,
		switcher: &fakeSwitcher{store: store},
		refresh:  &fakeRefresher{},
		status:   &fakeStatus{},
		home:     t.TempDir(),
		cbAddr:   cbAddr,
		token:    apiToken,
	}
	f.srv = httptest.NewServer(NewRouter(Deps{
		Store:     store,
		Refresher: f.refresh,
		Tokens:    token.NewManager(store, f.refresh),
		Quota:     &fakeQuota{store: store},
		Switcher:  f.switcher,
		IDEStatus: f.status,
		OAuth:     oauthHandlers,
		Scanner:   discovery.NewScanner(f.home),
		DataDir:   dataDir,
		APIToken:  apiToken,
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(method, path, body string) (int, map[string]interface{}) {
	f.t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(f.t, err)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (f *fixture) addAccount(email string) models.Account {
	f.t.Helper()
	acc, err := f.store.Add(email, "rt-"+email, "", nil)
	require.NoError(f.t, err)
	return acc
}

func TestRouter_VersionAndDataDir(t *testing.T) {
	f := newFixture(t, "")

	status, body := f.do(http.MethodGet, "/api/version", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body, "version")

	status, body = f.do(http.MethodGet, "/api/data-dir", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, filepath.Dir(f.store.Path()), body["data_dir"])
}

func TestRouter_AddAccount(t *testing.T) {
	f := newFixture(t, "")

	status, body := f.do(http.MethodPost, "/api/accounts", `{"email":"a@example.com","refresh_token":"1//rt"}`)
	require.Equal(t, http.StatusOK, status, body)
	acc := body["account"].(map[string]interface{})
	assert.Equal(t, "a@example.com", acc["email"])
	assert.Equal(t, true, acc["is_active"], "first account becomes active")
	assert.NotContains(t, acc, "refresh_token")

	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "at-1//rt", stored[0].AccessToken)

	status, body = f.do(http.MethodPost, "/api/accounts", `{"email":"a@example.com","refresh_token":"1//other"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, false, body["success"])

	status, _ = f.do(http.MethodPost, "/api/accounts", `{"email":"no-at-sign","refresh_token":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(http.MethodPost, "/api/accounts", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_AddAccountEmailFromIDToken(t *testing.T) {
	f := newFixture(t, "")

	status, _ := f.do(http.MethodPost, "/api/accounts", `{"refresh_token":"1//rt"}`)
	assert.Equal(t, http.StatusBadRequest, status, "no email and no id_token")

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "claims@example.com"}).SignedString([]byte("k"))
	require.NoError(t, err)
	f.refresh.idToken = idToken

	status, body := f.do(http.MethodPost, "/api/accounts", `{"refresh_token":"1//rt"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "claims@example.com", body["account"].(map[string]interface{})["email"])
}

func TestRouter_AddAccountRejectedToken(t *testing.T) {
	f := newFixture(t, "")
	f.refresh.err = fmt.Errorf("%w: invalid_grant", google.ErrTokenRefreshFailed)

	status, body := f.do(http.MethodPost, "/api/accounts", `{"email":"a@example.com","refresh_token":"dead"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["error"], "invalid_grant")

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRouter_ListDeleteActive(t *testing.T) {
	f := newFixture(t, "")
	a := f.addAccount("a@example.com")
	b := f.addAccount("b@example.com")

	status, body := f.do(http.MethodGet, "/api/accounts", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["accounts"], 2)

	status, body = f.do(http.MethodGet, "/api/active", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, a.ID, body["account"].(map[string]interface{})["id"])

	status, _ = f.do(http.MethodDelete, "/api/accounts/"+b.ID, "")
	assert.Equal(t, http.StatusOK, status)
	status, body = f.do(http.MethodDelete, "/api/accounts/"+b.ID, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])

	status, _ = f.do(http.MethodDelete, "/api/accounts/"+a.ID, "")
	require.Equal(t, http.StatusOK, status)
	status, body = f.do(http.MethodGet, "/api/active", "")
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["account"])
}

func TestRouter_RefreshQuota(t *testing.T) {
	f := newFixture(t, "")
	a := f.addAccount("a@example.com")

	status, body := f.do(http.MethodPost, "/api/accounts/"+a.ID+"/quota", "")
	require.Equal(t, http.StatusOK, status)
	q := body["quota"].(map[string]interface{})
	assert.Len(t, q["models"], 1)

	status, _ = f.do(http.MethodPost, "/api/accounts/missing/quota", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_RefreshAccount(t *testing.T) {
	f := newFixture(t, "")
	a := f.addAccount("a@example.com")

	status, body := f.do(http.MethodPost, "/api/accounts/"+a.ID+"/refresh", "")
	require.Equal(t, http.StatusOK, status, body)

	stored, err := f.store.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-rt-a@example.com", stored.AccessToken)

	f.refresh.err = fmt.Errorf("%w: invalid_grant", google.ErrTokenRefreshFailed)
	status, _ = f.do(http.MethodPost, "/api/accounts/"+a.ID+"/refresh", "")
	assert.Equal(t, http.StatusBadGateway, status)

	status, _ = f.do(http.MethodPost, "/api/accounts/missing/refresh", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_Switch(t *testing.T) {
	f := newFixture(t, "")
	f.addAccount("a@example.com")
	b := f.addAccount("b@example.com")

	status, body := f.do(http.MethodPost, "/api/switch/"+b.ID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "b@example.com", body["email"])

	active, err := f.store.GetActive()
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	status, _ = f.do(http.MethodPost, "/api/switch/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_SwitchPartialFailure(t *testing.T) {
	f := newFixture(t, "")
	a := f.addAccount("a@example.com")
	b := f.addAccount("b@example.com")
	f.switcher.partial = true

	status, body := f.do(http.MethodPost, "/api/switch/"+b.ID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "database injection failed")
	result := body["result"].(map[string]interface{})
	assert.Equal(t, string(switcher.PartialFailure), result["outcome"])

	active, err := f.store.GetActive()
	require.NoError(t, err)
	assert.Equal(t, a.ID, active.ID, "partial failure must not change the active account")
}

func TestRouter_ExportImport(t *testing.T) {
	f := newFixture(t, "")
	f.addAccount("a@example.com")

	resp, err := http.Get(f.srv.URL + "/api/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	var exported []models.Account
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exported))
	require.Len(t, exported, 1)
	assert.Equal(t, "rt-a@example.com", exported[0].RefreshToken)

	status, body := f.do(http.MethodPost, "/api/import",
		`[{"email":"a@example.com","refresh_token":"rt-new"},{"email":"c@example.com","refresh_token":"rt-c"},{"email":"","refresh_token":"x"}]`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(1), body["added"])
	assert.Equal(t, float64(1), body["updated"])
	assert.Equal(t, float64(1), body["skipped"])

	wrapped, err := json.Marshal(map[string]string{"json_data": `[{"email":"d@example.com","refresh_token":"rt-d"}]`})
	require.NoError(t, err)
	status, body = f.do(http.MethodPost, "/api/import", string(wrapped))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(1), body["added"])

	status, _ = f.do(http.MethodPost, "/api/import", `{"not":"an array"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = f.do(http.MethodPost, "/api/import", `[{"email":"nobody"}]`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "no valid accounts")
}

func TestRouter_IDEStatus(t *testing.T) {
	f := newFixture(t, "")

	status, body := f.do(http.MethodGet, "/api/ide-status", "")
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["ide_account"])

	f.status.status = &db.AuthStatus{Email: "ide@example.com", APIKey: "secret", Name: "ide"}
	status, body = f.do(http.MethodGet, "/api/ide-status", "")
	require.Equal(t, http.StatusOK, status)
	ide := body["ide_account"].(map[string]interface{})
	assert.Equal(t, "ide@example.com", ide["email"])
	assert.NotContains(t, ide, "apiKey")

	f.status.status, f.status.err = nil, fmt.Errorf("%w: /nowhere", db.ErrStateDBMissing)
	status, _ = f.do(http.MethodGet, "/api/ide-status", "")
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestRouter_APIToken(t *testing.T) {
	f := newFixture(t, "s3cret")

	resp, err := http.Get(f.srv.URL + "/api/version")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	status, _ := f.do(http.MethodGet, "/api/version", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestRouter_OAuthCallbackCode(t *testing.T) {
	f := newFixture(t, "")

	status, body := f.do(http.MethodPost, "/auth/callback", `{"code":"manual-code"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "oauth@example.com", body["account"].(map[string]interface{})["email"])

	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "rt-oauth", stored[0].RefreshToken)

	status, _ = f.do(http.MethodPost, "/auth/callback", `{"code":"bad-code"}`)
	assert.Equal(t, http.StatusBadGateway, status)

	status, _ = f.do(http.MethodPost, "/auth/callback", `{"code":"  "}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_OAuthStartCompletesInBackground(t *testing.T) {
	f := newFixture(t, "")

	status, body := f.do(http.MethodPost, "/auth/start", "")
	require.Equal(t, http.StatusOK, status, body)
	authURL, err := url.Parse(body["url"].(string))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	// Starting again replaces the pending login and rebinds the port.
	status, body = f.do(http.MethodPost, "/auth/start", "")
	require.Equal(t, http.StatusOK, status, body)
	authURL, err = url.Parse(body["url"].(string))
	require.NoError(t, err)
	state = authURL.Query().Get("state")

	cb := fmt.Sprintf("http://%s%s?code=browser-code&state=%s", f.cbAddr, google.DefaultCallbackPath, url.QueryEscape(state))
	resp, err := http.Get(cb)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		stored, err := f.store.Load()
		return err == nil && len(stored) == 1 && stored[0].Email == "oauth@example.com"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRouter_Discovery(t *testing.T) {
	f := newFixture(t, "")
	path := filepath.Join(f.home, ".gemini", "oauth_creds.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"access_token":"ya29.discovered-access-token","refresh_token":"1//discovered-refresh-token","email":"found@example.com"}`), 0o600))

	status, body := f.do(http.MethodGet, "/api/discovery/scan", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
	cred := body["credentials"].([]interface{})[0].(map[string]interface{})
	assert.NotEqual(t, "1//discovered-refresh-token", cred["refresh_token"])

	status, body = f.do(http.MethodPost, "/api/discovery/import", `{"source":"gemini-cli","index":0}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Account imported", body["message"])

	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "1//discovered-refresh-token", stored[0].RefreshToken)
	assert.True(t, stored[0].IsActive)

	status, _ = f.do(http.MethodPost, "/api/discovery/import", `{"source":"antigravity","index":0}`)
	assert.Equal(t, http.StatusNotFound, status)
}
