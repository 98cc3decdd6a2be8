package resident

import (
	"net/http"

	"github.com/goliatone/go-resident/core"
	"github.com/goliatone/go-resident/identity"
	"go.opentelemetry.io/otel"
)

type Config = core.Config

type IdentityConfig = core.IdentityConfig
type ProfileConfig = core.ProfileConfig
type ActivityConfig = core.ActivityConfig

type Option = core.Option

type Manager = core.Manager

type ManagerDependencies = core.ManagerDependencies
type IdentityProvider = core.IdentityProvider
type ProfileStore = core.ProfileStore
type ErrorSink = core.ErrorSink
type Navigator = core.Navigator
type ActivitySink = core.ActivitySink
type ActivityReader = core.ActivityReader

type Session = core.Session
type Phase = core.Phase
type Profile = core.Profile
type Value = core.Value
type TokenRequest = core.TokenRequest

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithIdentityProvider = core.WithIdentityProvider
	WithProfileStore     = core.WithProfileStore
	WithErrorSink        = core.WithErrorSink
	WithNavigator        = core.WithNavigator
	WithActivitySink     = core.WithActivitySink
	WithToken            = core.WithToken
	WithClock            = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	return core.NewManager(cfg, opts...)
}

// Setup builds a manager whose profile store is the HTTP profile client for
// cfg.Profile.BaseURL, traced with the global tracer provider. A
// WithProfileStore option in opts replaces it.
func Setup(cfg Config, httpClient *http.Client, opts ...Option) (*Manager, error) {
	if cfg.Profile.BaseURL == "" {
		return core.NewManager(cfg, opts...)
	}
	var doer identity.HTTPDoer
	if httpClient != nil {
		doer = httpClient
	}
	client, err := identity.NewProfileClientFromConfig(cfg, doer)
	if err != nil {
		return nil, err
	}
	store := identity.NewTracedProfileStore(client, otel.GetTracerProvider())
	all := make([]Option, 0, len(opts)+1)
	all = append(all, core.WithProfileStore(store))
	all = append(all, opts...)
	return core.NewManager(cfg, all...)
}
