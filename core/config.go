package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAudience       = "https://auth.localcivics.io/api/v2/"
	DefaultScope          = "read:current_user openid email"
	DefaultRequestTimeout = "10s"
)

type IdentityConfig struct {
	Audience string `koanf:"audience" mapstructure:"audience"`
	Scope    string `koanf:"scope" mapstructure:"scope"`
	ReturnTo string `koanf:"return_to" mapstructure:"return_to"`
}

type ProfileConfig struct {
	BaseURL        string `koanf:"base_url" mapstructure:"base_url"`
	RequestTimeout string `koanf:"request_timeout" mapstructure:"request_timeout"`
}

// Timeout parses RequestTimeout, falling back to the default on empty input.
func (c ProfileConfig) Timeout() time.Duration {
	raw := strings.TrimSpace(c.RequestTimeout)
	if raw == "" {
		raw = DefaultRequestTimeout
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		parsed, _ = time.ParseDuration(DefaultRequestTimeout)
	}
	return parsed
}

type ActivityConfig struct {
	Enabled *bool `koanf:"enabled" mapstructure:"enabled"`
}

// ActivityEnabled returns an activity section with the ledger explicitly
// switched on or off.
func ActivityEnabled(enabled bool) ActivityConfig {
	return ActivityConfig{Enabled: &enabled}
}

// IsEnabled reports whether lifecycle entries are recorded. Unset means on.
func (c ActivityConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Identity    IdentityConfig `koanf:"identity" mapstructure:"identity"`
	Profile     ProfileConfig  `koanf:"profile" mapstructure:"profile"`
	Activity    ActivityConfig `koanf:"activity" mapstructure:"activity"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "resident",
		Identity: IdentityConfig{
			Audience: DefaultAudience,
			Scope:    DefaultScope,
		},
		Profile: ProfileConfig{
			RequestTimeout: DefaultRequestTimeout,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Identity.Audience) == "" {
		return fmt.Errorf("core: identity.audience is required")
	}
	if strings.TrimSpace(c.Identity.Scope) == "" {
		return fmt.Errorf("core: identity.scope is required")
	}
	if raw := strings.TrimSpace(c.Profile.BaseURL); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: profile.base_url %q is invalid", raw)
		}
	}
	if raw := strings.TrimSpace(c.Profile.RequestTimeout); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("core: profile.request_timeout %q is invalid", raw)
		}
	}
	return nil
}

// TokenRequest returns the silent token request derived from the identity config.
func (c Config) TokenRequest() TokenRequest {
	return TokenRequest{
		Audience: strings.TrimSpace(c.Identity.Audience),
		Scope:    strings.TrimSpace(c.Identity.Scope),
	}
}
