// Package config loads agswitch settings from defaults, the data directory's
// .env and config.yaml files, and AGSWITCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDirName  = ".antigravity-manager"
	DefaultAPIAddr      = "127.0.0.1:3848"
	DefaultCallbackAddr = "127.0.0.1:3847"
	DefaultCallbackPath = "/auth/callback"

	FileName    = "config.yaml"
	EnvFileName = ".env"
)

// Config is the resolved runtime configuration.
type Config struct {
	DataDir      string
	APIAddr      string
	CallbackAddr string
	CallbackPath string
	OpenBrowser  bool

	// Executable and StateDBPath override the per-platform IDE layout.
	Executable  string
	StateDBPath string

	// APIToken, when set, must accompany every /api request.
	APIToken string

	ClientID     string
	ClientSecret string

	QuotaBaseURL string
}

type fileConfig struct {
	APIAddr      string `yaml:"api_addr"`
	CallbackAddr string `yaml:"callback_addr"`
	CallbackPath string `yaml:"callback_path"`
	OpenBrowser  *bool  `yaml:"open_browser"`
	Executable   string `yaml:"executable"`
	StateDB      string `yaml:"state_db"`
	APIToken     string `yaml:"api_token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	QuotaBaseURL string `yaml:"quota_base_url"`
}

// Load resolves the configuration. An empty dataDir means AGSWITCH_DATA_DIR,
// then ~/.antigravity-manager. Missing .env and config.yaml files are fine.
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = os.Getenv("AGSWITCH_DATA_DIR")
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, DefaultDataDirName)
	}

	cfg := &Config{
		DataDir:      dataDir,
		APIAddr:      DefaultAPIAddr,
		CallbackAddr: DefaultCallbackAddr,
		CallbackPath: DefaultCallbackPath,
		OpenBrowser:  true,
	}

	if err := cfg.applyEnvFile(filepath.Join(dataDir, EnvFileName)); err != nil {
		return nil, err
	}
	if err := cfg.applyFile(filepath.Join(dataDir, FileName)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(cfg.CallbackPath, "/") {
		cfg.CallbackPath = "/" + cfg.CallbackPath
	}
	if _, _, err := net.SplitHostPort(cfg.CallbackAddr); err != nil {
		return nil, fmt.Errorf("invalid callback address %q: %w", cfg.CallbackAddr, err)
	}
	return cfg, nil
}

// applyEnvFile reads CLIENT_ID and CLIENT_SECRET from a dotenv file without
// touching the process environment.
func (c *Config) applyEnvFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if v := values["CLIENT_ID"]; v != "" {
		c.ClientID = v
	}
	if v := values["CLIENT_SECRET"]; v != "" {
		c.ClientSecret = v
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	setString(&c.APIAddr, fc.APIAddr)
	setString(&c.CallbackAddr, fc.CallbackAddr)
	setString(&c.CallbackPath, fc.CallbackPath)
	setString(&c.Executable, fc.Executable)
	setString(&c.StateDBPath, fc.StateDB)
	setString(&c.APIToken, fc.APIToken)
	setString(&c.ClientID, fc.ClientID)
	setString(&c.ClientSecret, fc.ClientSecret)
	setString(&c.QuotaBaseURL, fc.QuotaBaseURL)
	if fc.OpenBrowser != nil {
		c.OpenBrowser = *fc.OpenBrowser
	}
	return nil
}

func (c *Config) applyEnv() error {
	// Plain CLIENT_ID/CLIENT_SECRET are honored; the AGSWITCH_ forms win.
	if v, ok := os.LookupEnv("CLIENT_ID"); ok && v != "" {
		c.ClientID = v
	}
	if v, ok := os.LookupEnv("CLIENT_SECRET"); ok && v != "" {
		c.ClientSecret = v
	}

	for name, dst := range map[string]*string{
		"AGSWITCH_API_ADDR":       &c.APIAddr,
		"AGSWITCH_CALLBACK_ADDR":  &c.CallbackAddr,
		"AGSWITCH_CALLBACK_PATH":  &c.CallbackPath,
		"AGSWITCH_EXECUTABLE":     &c.Executable,
		"AGSWITCH_STATE_DB":       &c.StateDBPath,
		"AGSWITCH_API_TOKEN":      &c.APIToken,
		"AGSWITCH_CLIENT_ID":      &c.ClientID,
		"AGSWITCH_CLIENT_SECRET":  &c.ClientSecret,
		"AGSWITCH_QUOTA_BASE_URL": &c.QuotaBaseURL,
	} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("AGSWITCH_OPEN_BROWSER"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AGSWITCH_OPEN_BROWSER has invalid value %q: %w", v, err)
		}
		c.OpenBrowser = parsed
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// AccountsPath is the accounts file inside the data directory.
func (c *Config) AccountsPath() string {
	return filepath.Join(c.DataDir, "accounts.json")
}

// RedirectURL is the OAuth redirect for the callback listener. Google only
// accepts the localhost form for the registered desktop client.
func (c *Config) RedirectURL() string {
	_, port, err := net.SplitHostPort(c.CallbackAddr)
	if err != nil {
		port = "3847"
	}
	return "http://localhost:" + port + c.CallbackPath
}
