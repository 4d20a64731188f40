package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/roombook/roombook-cli/internal/buildinfo"
	"github.com/roombook/roombook-cli/internal/endpoints"
)

// EnvPrefix is prepended to every environment variable override, e.g. ROOMBOOK_APP_HOSTNAME.
const EnvPrefix = "ROOMBOOK"

type Config struct {
	App struct {
		Hostname string `mapstructure:"hostname"`
	} `mapstructure:"app"`

	API struct {
		Timeout    int `mapstructure:"timeout"`
		RetryCount int `mapstructure:"retry_count"`
	} `mapstructure:"api"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Database struct {
		Path      string `mapstructure:"path"`
		Retention int    `mapstructure:"retention"`
	} `mapstructure:"database"`

	Session struct {
		Path       string `mapstructure:"path"`
		Passphrase string `mapstructure:"passphrase"`
	} `mapstructure:"session"`

	endpoints endpoints.Endpoints
}

// Option adjusts values after the file and environment have been read.
type Option func(*Config)

// WithHostname overrides app.hostname, typically from the --host flag.
func WithHostname(host string) Option {
	return func(c *Config) {
		if host != "" {
			c.App.Hostname = host
		}
	}
}

var cfg *Config

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".roombook"), nil
}

func Load(configPath string, opts ...Option) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	sessionPath := "session"
	if dir, err := Dir(); err == nil {
		sessionPath = filepath.Join(dir, "session")
		if configPath == "" {
			v.AddConfigPath(dir)
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
	}

	v.SetDefault("app.hostname", endpoints.LocalHostname)
	v.SetDefault("api.timeout", 30)
	v.SetDefault("api.retry_count", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.path", "./roombook.db")
	v.SetDefault("database.retention", 90)
	v.SetDefault("session.path", sessionPath)
	v.SetDefault("session.passphrase", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, opt := range opts {
		opt(c)
	}

	// Resolved once; nothing updates it afterwards.
	c.endpoints = endpoints.Resolve(endpoints.FromHostname(c.App.Hostname), buildinfo.OAuthRedirectURI)

	cfg = c
	return c, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded")
	}
	return cfg
}

// Endpoints returns the endpoint URLs resolved at load time.
func (c *Config) Endpoints() endpoints.Endpoints {
	return c.endpoints
}

// Environment returns the environment selected by app.hostname.
func (c *Config) Environment() endpoints.Environment {
	return endpoints.FromHostname(c.App.Hostname)
}

func (c *Config) Validate() error {
	if c.App.Hostname == "" {
		return fmt.Errorf("hostname is required. Set app.hostname in config.yaml, use --host or the %s_APP_HOSTNAME environment variable", EnvPrefix)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %d", c.API.Timeout)
	}
	if c.API.RetryCount < 0 {
		return fmt.Errorf("api.retry_count must not be negative, got %d", c.API.RetryCount)
	}
	if c.Database.Retention <= 0 {
		return fmt.Errorf("database.retention must be positive, got %d", c.Database.Retention)
	}
	return nil
}

// DefaultYAML is written by `roombook init`.
const DefaultYAML = `# roombook configuration
app:
  # Hostname of the booking site. "localhost" selects the local development API.
  hostname: localhost

api:
  timeout: 30
  retry_count: 3

log:
  level: info

database:
  path: ./roombook.db
  retention: 90

session:
  # When set, the stored session is encrypted with this passphrase.
  passphrase: ""
`
