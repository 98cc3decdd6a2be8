package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type managerBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	identity        IdentityProvider
	profiles        ProfileStore
	errorSink       ErrorSink
	navigator       Navigator
	activity        ActivitySink
	token           string
	now             func() time.Time
}

type Option func(*managerBuilder)

func WithLogger(logger Logger) Option {
	return func(b *managerBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *managerBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *managerBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *managerBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *managerBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *managerBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *managerBuilder) {
		b.optionsResolver = resolver
	}
}

func WithIdentityProvider(provider IdentityProvider) Option {
	return func(b *managerBuilder) {
		b.identity = provider
	}
}

func WithProfileStore(store ProfileStore) Option {
	return func(b *managerBuilder) {
		b.profiles = store
	}
}

func WithErrorSink(sink ErrorSink) Option {
	return func(b *managerBuilder) {
		b.errorSink = sink
	}
}

func WithNavigator(navigator Navigator) Option {
	return func(b *managerBuilder) {
		b.navigator = navigator
	}
}

func WithActivitySink(sink ActivitySink) Option {
	return func(b *managerBuilder) {
		b.activity = sink
	}
}

// WithToken starts the manager in impersonation mode with a fixed token.
func WithToken(token string) Option {
	return func(b *managerBuilder) {
		b.token = strings.TrimSpace(token)
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *managerBuilder) {
		b.now = now
	}
}

func defaultManagerBuilder(runtime Config) managerBuilder {
	loggerProvider, logger := glog.Resolve("resident", nil, nil)
	return managerBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             time.Now,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return residentErrorMapper(err)
}

// MapError applies the default resident error mapping to err.
func MapError(err error) *goerrors.Error {
	return defaultErrorMapper(err)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// StaticConfigLoader serves a fixed raw config map.
type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap flattens cfg into an options layer. Non-default layers only
// carry non-zero values so they never blank out lower layers.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	identity := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Identity.Audience) != "" {
		identity["audience"] = cfg.Identity.Audience
	}
	if includeZero || strings.TrimSpace(cfg.Identity.Scope) != "" {
		identity["scope"] = cfg.Identity.Scope
	}
	if includeZero || strings.TrimSpace(cfg.Identity.ReturnTo) != "" {
		identity["return_to"] = cfg.Identity.ReturnTo
	}
	if len(identity) > 0 {
		layer["identity"] = identity
	}

	profile := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Profile.BaseURL) != "" {
		profile["base_url"] = cfg.Profile.BaseURL
	}
	if includeZero || strings.TrimSpace(cfg.Profile.RequestTimeout) != "" {
		profile["request_timeout"] = cfg.Profile.RequestTimeout
	}
	if len(profile) > 0 {
		layer["profile"] = profile
	}

	// activity.enabled is carried whenever a layer sets it, false included.
	if includeZero || cfg.Activity.Enabled != nil {
		layer["activity"] = map[string]any{
			"enabled": cfg.Activity.IsEnabled(),
		}
	}
	return layer
}
