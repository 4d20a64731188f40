package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roombook/roombook-cli/internal/buildinfo"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.App.Hostname != "localhost" {
		t.Errorf("hostname = %q, want localhost", c.App.Hostname)
	}
	if c.API.Timeout != 30 {
		t.Errorf("timeout = %d, want 30", c.API.Timeout)
	}
	if c.API.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", c.API.RetryCount)
	}
	if c.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", c.Log.Level)
	}
	if got := c.Endpoints().APIBaseURL; got != "http://localhost:3000/api" {
		t.Errorf("APIBaseURL = %q", got)
	}
	if Get() != c {
		t.Error("Get() should return the last loaded config")
	}
}

func TestLoadHostname(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		env      string
		flag     string
		wantBase string
	}{
		{
			name:     "from file",
			file:     "app:\n  hostname: rooms.example.com\n",
			wantBase: "https://rooms.example.com/api",
		},
		{
			name:     "environment overrides file",
			file:     "app:\n  hostname: rooms.example.com\n",
			env:      "env.example.com",
			wantBase: "https://env.example.com/api",
		},
		{
			name:     "flag overrides environment",
			file:     "app:\n  hostname: rooms.example.com\n",
			env:      "env.example.com",
			flag:     "localhost",
			wantBase: "http://localhost:3000/api",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv("ROOMBOOK_APP_HOSTNAME", tt.env)
			}
			c, err := Load(writeConfig(t, tt.file), WithHostname(tt.flag))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			ep := c.Endpoints()
			if ep.APIBaseURL != tt.wantBase {
				t.Errorf("APIBaseURL = %q, want %q", ep.APIBaseURL, tt.wantBase)
			}
			if ep.BookingsURL != tt.wantBase+"/bookings" {
				t.Errorf("BookingsURL = %q", ep.BookingsURL)
			}
			if ep.RoomsURL != tt.wantBase+"/rooms" {
				t.Errorf("RoomsURL = %q", ep.RoomsURL)
			}
			if ep.AuthCallbackURL != tt.wantBase+"/auth/callback" {
				t.Errorf("AuthCallbackURL = %q", ep.AuthCallbackURL)
			}
		})
	}
}

func TestLoadRedirectURIFromBuild(t *testing.T) {
	prev := buildinfo.OAuthRedirectURI
	t.Cleanup(func() { buildinfo.OAuthRedirectURI = prev })

	buildinfo.OAuthRedirectURI = "https://rooms.example.com/oauth/done"
	c, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Changing the build value after load must not leak into the resolved endpoints.
	buildinfo.OAuthRedirectURI = "changed"

	if got := c.Endpoints().OAuthRedirectURI; got != "https://rooms.example.com/oauth/done" {
		t.Errorf("OAuthRedirectURI = %q", got)
	}
}

func TestLoadRedirectURIUnset(t *testing.T) {
	prev := buildinfo.OAuthRedirectURI
	t.Cleanup(func() { buildinfo.OAuthRedirectURI = prev })
	buildinfo.OAuthRedirectURI = ""

	c, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := c.Endpoints().OAuthRedirectURI; got != "" {
		t.Errorf("OAuthRedirectURI = %q, want empty", got)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() should not require a redirect URI: %v", err)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "app: [unclosed\n")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.App.Hostname = "localhost"
		c.API.Timeout = 30
		c.API.RetryCount = 3
		c.Database.Retention = 90
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty hostname", mutate: func(c *Config) { c.App.Hostname = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.API.Timeout = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.API.RetryCount = -1 }, wantErr: true},
		{name: "no retries", mutate: func(c *Config) { c.API.RetryCount = 0 }},
		{name: "zero retention", mutate: func(c *Config) { c.Database.Retention = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
