// Package config loads the locker settings from YAML
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPassphrase is the secret the locker opens with when none is configured.
const DefaultPassphrase = "music123"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
	Upload  UploadConfig  `yaml:"upload"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
}

type AuthConfig struct {
	Passphrase       string        `yaml:"passphrase"`
	PassphraseBcrypt string        `yaml:"passphrase_bcrypt"` // takes precedence over passphrase
	LoginDelay       time.Duration `yaml:"login_delay"`
}

type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type UploadConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxUploadMB:    64,
		},
		Auth: AuthConfig{
			Passphrase: DefaultPassphrase,
			LoginDelay: 500 * time.Millisecond,
		},
		Session: SessionConfig{
			TTL:             12 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Upload: UploadConfig{
			Delay: time.Second,
		},
	}
}

// Load reads the YAML file at path on top of the defaults. A missing file is
// not an error. The PORT environment variable overrides server.port.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	case len(bytes.TrimSpace(data)) > 0:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("server.allowed_origins cannot be empty")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if c.Auth.Passphrase == "" && c.Auth.PassphraseBcrypt == "" {
		return fmt.Errorf("auth.passphrase or auth.passphrase_bcrypt is required")
	}
	if c.Auth.LoginDelay < 0 || c.Upload.Delay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Session.CleanupInterval <= 0 {
		return fmt.Errorf("session.cleanup_interval must be positive")
	}
	return nil
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
