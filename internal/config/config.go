// Package config resolves directories, endpoints and server settings from an
// optional YAML config file plus environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variables honored as overrides.
const (
	// EnvHome relocates the codexmux state directory (config, audit, db).
	EnvHome = "CODEXMUX_HOME"

	// EnvTokenURLOverride points the refresh-token grant at a different
	// endpoint, used by tests and local stubs.
	EnvTokenURLOverride = "CODEX_REFRESH_TOKEN_URL_OVERRIDE"

	// EnvChatGPTBaseURL overrides the usage endpoint's base URL.
	EnvChatGPTBaseURL = "CHATGPT_BASE_URL"
)

// Config holds all tunables. Zero fields fall back to defaults at load time.
type Config struct {
	// CredentialsDir holds the per-profile auth records, the current
	// credentials file and the active-profile marker.
	CredentialsDir string `yaml:"credentials_dir"`

	// AuditDir receives per-profile refresh-attempt payloads.
	AuditDir string `yaml:"audit_dir"`

	// DBPath is the sqlite file recording refresh history.
	DBPath string `yaml:"db_path"`

	// TokenURL is the provider's token endpoint.
	TokenURL string `yaml:"token_url,omitempty"`

	// ChatGPTBaseURL is the base URL of the provider's usage API.
	ChatGPTBaseURL string `yaml:"chatgpt_base_url,omitempty"`

	// Port is the local API server port.
	Port int `yaml:"port"`

	// TokenPath stores the API server's bearer token.
	TokenPath string `yaml:"token_path,omitempty"`
}

// Home returns the codexmux state directory.
func Home() string {
	if home := os.Getenv(EnvHome); home != "" {
		return home
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".codexmux"
	}
	return filepath.Join(homeDir, ".codexmux")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Home(), "config.yaml")
}

// Default returns the configuration used when no file is present.
func Default() Config {
	home := Home()

	credentials := filepath.Join(home, "credentials")
	if homeDir, err := os.UserHomeDir(); err == nil {
		credentials = filepath.Join(homeDir, ".codex")
	}

	return Config{
		CredentialsDir: credentials,
		AuditDir:       filepath.Join(home, "refresh-audit"),
		DBPath:         filepath.Join(home, "history.db"),
		Port:           7893,
		TokenPath:      filepath.Join(home, ".api_token"),
	}
}

// Load reads the config file at path, fills unset fields with defaults and
// applies environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	raw, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = withDefaults(cfg)
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if override := os.Getenv(EnvTokenURLOverride); override != "" {
		cfg.TokenURL = override
	}
	if base := os.Getenv(EnvChatGPTBaseURL); base != "" {
		cfg.ChatGPTBaseURL = base
	}

	return cfg, nil
}

// withDefaults fills any fields the config file left empty.
func withDefaults(cfg Config) Config {
	def := Default()
	if cfg.CredentialsDir == "" {
		cfg.CredentialsDir = def.CredentialsDir
	}
	if cfg.AuditDir == "" {
		cfg.AuditDir = def.AuditDir
	}
	if cfg.DBPath == "" {
		cfg.DBPath = def.DBPath
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = def.TokenPath
	}
	return cfg
}
