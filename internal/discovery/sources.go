package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pysugar/antigravity-switch/internal/auth/google"
)

// Credential is a Google OAuth credential found on disk.
type Credential struct {
	Source       string    `json:"source"`
	Email        string    `json:"email"` // may be empty if not extractable
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	ProjectID    string    `json:"project_id,omitempty"`
	ConfigPath   string    `json:"config_path"`
}

// Source is a tool whose credential files can be imported.
type Source struct {
	Name        string
	Description string
	ConfigPaths []string // relative to the home directory, globs allowed
	Parser      func(path string) (*Credential, error)
}

// Sources are all known local Google credential files.
var Sources = []Source{
	{
		Name:        "antigravity",
		Description: "Antigravity AI Tools",
		ConfigPaths: []string{
			".gemini/antigravity/google_ai_credentials.json",
		},
		Parser: parseAntigravityCredentials,
	},
	{
		Name:        "gemini-cli",
		Description: "Gemini CLI",
		ConfigPaths: []string{
			".gemini/oauth_creds.json",
			".config/gemini-cli/credentials.json",
			".gemini-cli/credentials.json",
		},
		Parser: parseGeminiCLICredentials,
	},
}

func expandPath(home, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}

type antigravityCredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
	Email        string `json:"email"`
	ProjectID    string `json:"project_id"`
}

func parseAntigravityCredentials(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var creds antigravityCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	cred := &Credential{
		Source:       "antigravity",
		Email:        emailOrIDToken(creds.Email, creds.IDToken),
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ProjectID:    creds.ProjectID,
		ConfigPath:   path,
	}
	if creds.ExpiresAt > 0 {
		cred.ExpiresAt = time.Unix(creds.ExpiresAt, 0)
	}
	return cred, nil
}

func parseGeminiCLICredentials(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var creds map[string]interface{}
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	accessToken, _ := creds["access_token"].(string)
	refreshToken, _ := creds["refresh_token"].(string)
	idToken, _ := creds["id_token"].(string)
	email, _ := creds["email"].(string)

	cred := &Credential{
		Source:       "gemini-cli",
		Email:        emailOrIDToken(email, idToken),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ConfigPath:   path,
	}
	// oauth_creds.json stores expiry_date in milliseconds.
	if ms, ok := creds["expiry_date"].(float64); ok && ms > 0 {
		cred.ExpiresAt = time.UnixMilli(int64(ms))
	}
	return cred, nil
}

func emailOrIDToken(email, idToken string) string {
	if email != "" || idToken == "" {
		return email
	}
	if e, err := google.EmailFromIDToken(idToken); err == nil {
		return e
	}
	return ""
}
