package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chet/config.toml.
type Config struct {
	// ServerURL is the websocket base of the chat backend,
	// e.g. ws://localhost:3030.
	ServerURL string `toml:"server_url"`
	// Token is the bearer token obtained from the login flow.
	Token          string `toml:"token"`
	DefaultSession string `toml:"default_session"`
}

// Load reads config from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// TokenSource reads the bearer token from the config file on every
// call, so a token refreshed by the login flow is picked up on the
// next reconnect attempt without restarting the client.
type TokenSource struct {
	Path string
}

// Token returns the current token, or an error when no usable token
// is configured.
func (s *TokenSource) Token() (string, error) {
	cfg, err := Load(s.Path)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Token == "" {
		return "", fmt.Errorf("no token in %s; log in first", s.Path)
	}
	return cfg.Token, nil
}
