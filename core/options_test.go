package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewManager_DefaultDependencies(t *testing.T) {
	manager, err := NewManager(Config{}, WithProfileStore(newFakeProfiles()))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	deps := manager.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorFactory == nil {
		t.Fatalf("expected default error factory")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil {
		t.Fatalf("expected default config provider")
	}
	if deps.OptionsResolver == nil {
		t.Fatalf("expected default options resolver")
	}
	if _, ok := deps.ErrorSink.(*LoggingErrorSink); !ok {
		t.Fatalf("expected logging error sink by default, got %T", deps.ErrorSink)
	}
	cfg := manager.Config()
	if cfg.ServiceName != "resident" {
		t.Fatalf("expected default service_name=resident, got %q", cfg.ServiceName)
	}
	if cfg.Identity.Audience != DefaultAudience || cfg.Identity.Scope != DefaultScope {
		t.Fatalf("expected default token request, got %+v", cfg.Identity)
	}
	if !cfg.Activity.IsEnabled() {
		t.Fatalf("expected activity enabled by default")
	}
}

func TestNewManager_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	customFactory := func(message string, category ...goerrors.Category) *goerrors.Error {
		return goerrors.New("custom:"+message, category...)
	}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{ServiceName: "resolved"}}
	sink := &recordingSink{}
	navigator := &recordingNavigator{}
	activity := &memoryActivity{}
	profiles := newFakeProfiles()

	manager, err := NewManager(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorFactory(customFactory),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithProfileStore(profiles),
		WithErrorSink(sink),
		WithNavigator(navigator),
		WithActivitySink(activity),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	deps := manager.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := deps.LoggerProvider.GetLogger("resident.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.ConfigProvider != configProvider {
		t.Fatalf("expected custom config provider override")
	}
	if deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom options resolver override")
	}
	if deps.ErrorSink != sink || deps.Navigator != navigator || deps.ActivitySink != activity {
		t.Fatalf("expected collaborator overrides")
	}
	if deps.ProfileStore != profiles {
		t.Fatalf("expected profile store override")
	}
	if got := manager.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if mapped := deps.ErrorMapper(errors.New("x")); !errors.Is(mapped, sentinel) {
		t.Fatalf("expected custom mapper, got %v", mapped)
	}
}

func TestNewManager_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"identity": map[string]any{
			"audience":  "https://api.example/",
			"return_to": "https://config.example",
		},
		"profile": map[string]any{
			"base_url": "https://profiles.example",
		},
	}})

	manager, err := NewManager(
		Config{ServiceName: "from-runtime", Identity: IdentityConfig{ReturnTo: "https://runtime.example"}},
		WithConfigProvider(provider),
		WithProfileStore(newFakeProfiles()),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	cfg := manager.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.Identity.ReturnTo != "https://runtime.example" {
		t.Fatalf("expected runtime return_to, got %q", cfg.Identity.ReturnTo)
	}
	if cfg.Identity.Audience != "https://api.example/" {
		t.Fatalf("expected config layer audience, got %q", cfg.Identity.Audience)
	}
	if cfg.Identity.Scope != DefaultScope {
		t.Fatalf("expected default scope to survive, got %q", cfg.Identity.Scope)
	}
	if cfg.Profile.BaseURL != "https://profiles.example" {
		t.Fatalf("expected config layer base_url, got %q", cfg.Profile.BaseURL)
	}
}

func TestNewManager_RejectsInvalidConfig(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"profile": map[string]any{"request_timeout": "soon"},
	}})
	_, err := NewManager(Config{}, WithConfigProvider(provider), WithProfileStore(newFakeProfiles()))
	if err == nil {
		t.Fatalf("expected invalid request_timeout to fail")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.Profile.BaseURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid base_url")
	}
	cfg = DefaultConfig()
	cfg.Identity.Scope = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected scope required")
	}
}

func TestProfileConfig_Timeout(t *testing.T) {
	if got := (ProfileConfig{}).Timeout().String(); got != "10s" {
		t.Fatalf("expected default timeout, got %s", got)
	}
	if got := (ProfileConfig{RequestTimeout: "250ms"}).Timeout().String(); got != "250ms" {
		t.Fatalf("expected parsed timeout, got %s", got)
	}
}

func TestNewManager_ActivityDisabledFromYAML(t *testing.T) {
	manager, err := NewManager(DefaultConfig(),
		WithProfileStore(newFakeProfiles()),
		WithConfigProvider(NewCfgxConfigProvider(YAMLConfigLoader{Data: []byte("activity:\n  enabled: false\n")})),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if manager.Config().Activity.IsEnabled() {
		t.Fatalf("expected activity disabled by the config file")
	}
}

func TestNewManager_ActivityDisabledFromEnv(t *testing.T) {
	activity := &memoryActivity{}
	manager, err := NewManager(DefaultConfig(),
		WithProfileStore(newFakeProfiles()),
		WithActivitySink(activity),
		WithToken("tok"),
		WithConfigProvider(NewCfgxConfigProvider(EnvConfigLoader{
			Environment: map[string]string{"RESIDENT_ACTIVITY_ENABLED": "false"},
		})),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if manager.Config().Activity.IsEnabled() {
		t.Fatalf("expected activity disabled by the environment")
	}
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := len(activity.actions()); got != 0 {
		t.Fatalf("expected no activity entries while disabled, got %d", got)
	}
}

func TestNewManager_RuntimeActivityOverridesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Activity = ActivityEnabled(true)
	manager, err := NewManager(cfg,
		WithProfileStore(newFakeProfiles()),
		WithConfigProvider(NewCfgxConfigProvider(YAMLConfigLoader{Data: []byte("activity:\n  enabled: false\n")})),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if !manager.Config().Activity.IsEnabled() {
		t.Fatalf("expected runtime activity setting to win")
	}

	manager, err = NewManager(Config{Activity: ActivityEnabled(false)}, WithProfileStore(newFakeProfiles()))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if manager.Config().Activity.IsEnabled() {
		t.Fatalf("expected runtime config to disable activity")
	}
}
