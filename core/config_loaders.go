package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "RESIDENT_"

type residentEnv struct {
	ServiceName     string `env:"SERVICE_NAME"`
	Audience        string `env:"IDENTITY_AUDIENCE"`
	Scope           string `env:"IDENTITY_SCOPE"`
	ReturnTo        string `env:"IDENTITY_RETURN_TO"`
	BaseURL         string `env:"PROFILE_BASE_URL"`
	RequestTimeout  string `env:"PROFILE_REQUEST_TIMEOUT"`
	ActivityEnabled string `env:"ACTIVITY_ENABLED"`
}

// EnvConfigLoader reads RESIDENT_* variables. Environment overrides the
// process environment when set.
type EnvConfigLoader struct {
	Environment map[string]string
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	var raw residentEnv
	options := env.Options{Prefix: EnvPrefix}
	if l.Environment != nil {
		options.Environment = l.Environment
	}
	if err := env.ParseWithOptions(&raw, options); err != nil {
		return nil, fmt.Errorf("core: parse environment: %w", err)
	}

	out := map[string]any{}
	if value := strings.TrimSpace(raw.ServiceName); value != "" {
		out["service_name"] = value
	}
	identity := map[string]any{}
	setIfPresent(identity, "audience", raw.Audience)
	setIfPresent(identity, "scope", raw.Scope)
	setIfPresent(identity, "return_to", raw.ReturnTo)
	if len(identity) > 0 {
		out["identity"] = identity
	}
	profile := map[string]any{}
	setIfPresent(profile, "base_url", raw.BaseURL)
	setIfPresent(profile, "request_timeout", raw.RequestTimeout)
	if len(profile) > 0 {
		out["profile"] = profile
	}
	if value := strings.TrimSpace(raw.ActivityEnabled); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("core: %sACTIVITY_ENABLED %q is invalid", EnvPrefix, value)
		}
		out["activity"] = map[string]any{"enabled": enabled}
	}
	return out, nil
}

type yamlConfig struct {
	ServiceName string `yaml:"service_name"`
	Identity    struct {
		Audience string `yaml:"audience"`
		Scope    string `yaml:"scope"`
		ReturnTo string `yaml:"return_to"`
	} `yaml:"identity"`
	Profile struct {
		BaseURL        string `yaml:"base_url"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"profile"`
	Activity struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"activity"`
}

// YAMLConfigLoader reads a YAML document from Path, or from Data when set.
type YAMLConfigLoader struct {
	Path string
	Data []byte
}

func (l YAMLConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	data := l.Data
	if len(data) == 0 && strings.TrimSpace(l.Path) != "" {
		read, err := os.ReadFile(l.Path)
		if err != nil {
			return nil, fmt.Errorf("core: read config %s: %w", l.Path, err)
		}
		data = read
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	var doc yamlConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("core: parse yaml config: %w", err)
	}

	out := map[string]any{}
	if value := strings.TrimSpace(doc.ServiceName); value != "" {
		out["service_name"] = value
	}
	identity := map[string]any{}
	setIfPresent(identity, "audience", doc.Identity.Audience)
	setIfPresent(identity, "scope", doc.Identity.Scope)
	setIfPresent(identity, "return_to", doc.Identity.ReturnTo)
	if len(identity) > 0 {
		out["identity"] = identity
	}
	profile := map[string]any{}
	setIfPresent(profile, "base_url", doc.Profile.BaseURL)
	setIfPresent(profile, "request_timeout", doc.Profile.RequestTimeout)
	if len(profile) > 0 {
		out["profile"] = profile
	}
	if doc.Activity.Enabled != nil {
		out["activity"] = map[string]any{"enabled": *doc.Activity.Enabled}
	}
	return out, nil
}

// ChainConfigLoader merges loaders in order; later loaders win per key.
type ChainConfigLoader []RawConfigLoader

func (c ChainConfigLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	for _, loader := range c {
		if loader == nil {
			continue
		}
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		mergeRaw(out, raw)
	}
	return out, nil
}

func mergeRaw(dst map[string]any, src map[string]any) {
	for key, value := range src {
		nested, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		existing, ok := dst[key].(map[string]any)
		if !ok {
			existing = map[string]any{}
			dst[key] = existing
		}
		mergeRaw(existing, nested)
	}
}

func setIfPresent(target map[string]any, key string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		target[key] = trimmed
	}
}
