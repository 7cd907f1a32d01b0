package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"AGSWITCH_DATA_DIR",
		"AGSWITCH_API_ADDR",
		"AGSWITCH_CALLBACK_ADDR",
		"AGSWITCH_CALLBACK_PATH",
		"AGSWITCH_EXECUTABLE",
		"AGSWITCH_STATE_DB",
		"AGSWITCH_API_TOKEN",
		"AGSWITCH_CLIENT_ID",
		"AGSWITCH_CLIENT_SECRET",
		"AGSWITCH_QUOTA_BASE_URL",
		"AGSWITCH_OPEN_BROWSER",
		"CLIENT_ID",
		"CLIENT_SECRET",
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
	if cfg.APIAddr != DefaultAPIAddr || cfg.CallbackAddr != DefaultCallbackAddr || cfg.CallbackPath != DefaultCallbackPath {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.OpenBrowser {
		t.Error("OpenBrowser should default to true")
	}
	if cfg.AccountsPath() != filepath.Join(dir, "accounts.json") {
		t.Errorf("AccountsPath = %q", cfg.AccountsPath())
	}
	if cfg.RedirectURL() != "http://localhost:3847/auth/callback" {
		t.Errorf("RedirectURL = %q", cfg.RedirectURL())
	}
}

func TestLoad_DataDirFromEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("AGSWITCH_DATA_DIR", dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != dir {
		t.Fatalf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
}

func TestLoad_Layering(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, EnvFileName), "CLIENT_ID=env-file-id\nCLIENT_SECRET=env-file-secret\n")
	writeFile(t, filepath.Join(dir, FileName), `
api_addr: 127.0.0.1:9000
callback_addr: 127.0.0.1:4000
callback_path: oauth/done
open_browser: false
state_db: /tmp/state.vscdb
client_id: yaml-id
`)
	t.Setenv("AGSWITCH_API_ADDR", "127.0.0.1:9999")
	t.Setenv("AGSWITCH_API_TOKEN", "s3cret")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.APIAddr != "127.0.0.1:9999" {
		t.Errorf("env should override yaml api_addr, got %q", cfg.APIAddr)
	}
	if cfg.CallbackAddr != "127.0.0.1:4000" || cfg.CallbackPath != "/oauth/done" {
		t.Errorf("callback = %q %q", cfg.CallbackAddr, cfg.CallbackPath)
	}
	if cfg.OpenBrowser {
		t.Error("open_browser: false was ignored")
	}
	if cfg.StateDBPath != "/tmp/state.vscdb" {
		t.Errorf("StateDBPath = %q", cfg.StateDBPath)
	}
	if cfg.ClientID != "yaml-id" {
		t.Errorf("yaml should override .env client id, got %q", cfg.ClientID)
	}
	if cfg.ClientSecret != "env-file-secret" {
		t.Errorf("ClientSecret = %q", cfg.ClientSecret)
	}
	if cfg.APIToken != "s3cret" {
		t.Errorf("APIToken = %q", cfg.APIToken)
	}
	if cfg.RedirectURL() != "http://localhost:4000/oauth/done" {
		t.Errorf("RedirectURL = %q", cfg.RedirectURL())
	}
}

func TestLoad_ClientCredentialsFromEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, EnvFileName), "CLIENT_ID=env-file-id\nCLIENT_SECRET=env-file-secret\n")
	t.Setenv("CLIENT_ID", "process-id")
	t.Setenv("CLIENT_SECRET", "process-secret")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClientID != "process-id" || cfg.ClientSecret != "process-secret" {
		t.Fatalf("process environment should override .env, got %q %q", cfg.ClientID, cfg.ClientSecret)
	}

	t.Setenv("AGSWITCH_CLIENT_ID", "prefixed-id")
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClientID != "prefixed-id" {
		t.Errorf("AGSWITCH_CLIENT_ID should win over CLIENT_ID, got %q", cfg.ClientID)
	}
	if cfg.ClientSecret != "process-secret" {
		t.Errorf("ClientSecret = %q", cfg.ClientSecret)
	}
}

func TestLoad_InvalidInputs(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{
			name: "bad yaml",
			setup: func(t *testing.T, dir string) {
				writeFile(t, filepath.Join(dir, FileName), "api_addr: [unterminated")
			},
		},
		{
			name: "bad open browser env",
			setup: func(t *testing.T, dir string) {
				t.Setenv("AGSWITCH_OPEN_BROWSER", "sometimes")
			},
		},
		{
			name: "bad callback addr",
			setup: func(t *testing.T, dir string) {
				t.Setenv("AGSWITCH_CALLBACK_ADDR", "no-port")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			tt.setup(t, dir)
			if _, err := Load(dir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
