// Package config provides YAML-based configuration loading for pa, with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override (PA_API_BASE_URL...).
const EnvPrefix = "PA"

// Token store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Environment is the deployment environment the client runs in.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// IsProduction reports whether the environment corresponds to production.
func (e Environment) IsProduction() bool {
	return e == Production
}

// Config is the top-level pa configuration, loaded from pa.yaml.
type Config struct {
	Environment Environment     `yaml:"environment" envconfig:"environment"`
	API         APIConfig       `yaml:"api" envconfig:"api"`
	Session     SessionConfig   `yaml:"session" envconfig:"session"`
	Log         LogConfig       `yaml:"log" envconfig:"log"`
	DevServer   DevServerConfig `yaml:"devserver" envconfig:"devserver"`
}

// APIConfig holds backend connection settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"base_url"`
	Timeout time.Duration `yaml:"timeout" envconfig:"timeout"`
}

// SessionConfig controls where the session token is persisted and how often
// it is revalidated against the backend.
type SessionConfig struct {
	Store string `yaml:"store" envconfig:"store"`
	Path  string `yaml:"path" envconfig:"path"`
	// Revalidate is a cron spec ("@every 5m", "*/10 * * * *"); empty disables.
	Revalidate string `yaml:"revalidate" envconfig:"revalidate"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"level"`
}

// DevServerConfig holds settings for the local stand-in backend.
type DevServerConfig struct {
	Port int `yaml:"port" envconfig:"port"`
	// DB is the sqlite database of the stand-in backend; ":memory:" keeps
	// everything in process.
	DB string `yaml:"db" envconfig:"db"`
}

// LoadDotenv loads KEY=value pairs from the given files into the process
// environment. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads a YAML config file from path and returns a validated Config.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, applies PA_* environment overrides and
// returns a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Dir returns the per-user directory holding pa state.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: user config dir: %w", err)
	}
	return filepath.Join(base, "pa"), nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() error {
	if c.Environment == "" {
		c.Environment = Development
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8000"
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.Session.Store == "" {
		c.Session.Store = StoreFile
	}
	if c.Session.Path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		name := "token"
		if c.Session.Store == StoreSQLite {
			name = "state.db"
		}
		c.Session.Path = filepath.Join(dir, name)
	}
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if c.DevServer.Port == 0 {
		c.DevServer.Port = 8000
	}
	if c.DevServer.DB == "" {
		c.DevServer.DB = ":memory:"
	}
	return nil
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Environment {
	case Development, Production:
	default:
		errs = append(errs, fmt.Sprintf("environment %q must be development or production", c.Environment))
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.base_url %q must be an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, "api.timeout must not be negative")
	}
	switch c.Session.Store {
	case StoreFile, StoreSQLite:
	default:
		errs = append(errs, fmt.Sprintf("session.store %q must be %q or %q", c.Session.Store, StoreFile, StoreSQLite))
	}
	if c.Session.Revalidate != "" {
		if _, err := cron.ParseStandard(c.Session.Revalidate); err != nil {
			errs = append(errs, fmt.Sprintf("session.revalidate %q: %v", c.Session.Revalidate, err))
		}
	}
	if c.DevServer.Port < 0 || c.DevServer.Port > 65535 {
		errs = append(errs, fmt.Sprintf("devserver.port %d out of range", c.DevServer.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
