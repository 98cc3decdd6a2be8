package core

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Manager owns the resident session. It reacts to credential changes,
// resolves the profile, serializes saves and publishes snapshots.
//
// Three counters guard against late results:
//   - credentialEpoch invalidates token acquisitions that were overtaken;
//   - fetchEpoch invalidates resolve fetches (bumped on every credential
//     change, reset, reload and close);
//   - saveSeq ties the Saving flag to the save that set it.
type Manager struct {
	config          Config
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
	resolver        *CredentialResolver
	now             func() time.Time

	mu              sync.Mutex
	state           Session
	explicit        string
	credentialEpoch uint64
	fetchEpoch      uint64
	saveSeq         uint64
	version         uint64
	closed          bool

	listeners    []listener
	nextListener uint64
	pending      []Session
	draining     bool
}

type ManagerDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorFactory     ErrorFactory
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	IdentityProvider IdentityProvider
	ProfileStore     ProfileStore
	ErrorSink        ErrorSink
	Navigator        Navigator
	ActivitySink     ActivitySink
}

type listener struct {
	id uint64
	fn func(Session)
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	builder := defaultManagerBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("resident", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("resident"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = time.Now
	}
	if builder.errorSink == nil {
		builder.errorSink = NewLoggingErrorSink(logger)
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.profiles == nil {
		return nil, builder.errorFactory("resident: profile store is required", goerrors.CategoryBadInput).
			WithTextCode(ErrorBadInput)
	}

	m := &Manager{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		identity:        builder.identity,
		profiles:        builder.profiles,
		errorSink:       builder.errorSink,
		navigator:       builder.navigator,
		activity:        builder.activity,
		now:             builder.now,
		explicit:        builder.token,
		state:           Session{Phase: PhaseIdle},
	}
	m.resolver = NewCredentialResolver(builder.identity, builder.errorSink, finalConfig.TokenRequest())
	return m, nil
}

func (m *Manager) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.config
}

func (m *Manager) Dependencies() ManagerDependencies {
	if m == nil {
		return ManagerDependencies{}
	}
	return ManagerDependencies{
		Logger:           m.logger,
		LoggerProvider:   m.loggerProvider,
		MetricsRecorder:  m.metricsRecorder,
		ErrorFactory:     m.errorFactory,
		ErrorMapper:      m.errorMapper,
		ConfigProvider:   m.configProvider,
		OptionsResolver:  m.optionsResolver,
		IdentityProvider: m.identity,
		ProfileStore:     m.profiles,
		ErrorSink:        m.errorSink,
		Navigator:        m.navigator,
		ActivitySink:     m.activity,
	}
}

// Session returns a deep copy of the current state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn for every published snapshot, in publication order.
// The returned func detaches it.
func (m *Manager) Subscribe(fn func(Session)) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return func() {}
	}
	m.nextListener++
	id := m.nextListener
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for index, entry := range m.listeners {
				if entry.id == id {
					m.listeners = append(m.listeners[:index:index], m.listeners[index+1:]...)
					return
				}
			}
		})
	}
}

// Start mounts the session: reads the provider identity and resolves.
func (m *Manager) Start(ctx context.Context) error {
	return m.refresh(ctx, "start")
}

// IdentityChanged re-resolves when the provider's current user differs from
// the last observed one.
func (m *Manager) IdentityChanged(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	explicit := m.explicit
	previous := m.state.Identity
	m.mu.Unlock()

	if explicit == "" && m.currentIdentity(ctx) == previous && previous != "" {
		return nil
	}
	return m.refresh(ctx, "identity_changed")
}

// SetToken switches the explicit token. A non-empty token enters
// impersonation mode; an empty one returns to provider-driven resolution.
func (m *Manager) SetToken(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.explicit = strings.TrimSpace(token)
	m.mu.Unlock()
	return m.refresh(ctx, "set_token")
}

func (m *Manager) currentIdentity(ctx context.Context) string {
	if m.identity == nil {
		return ""
	}
	return strings.TrimSpace(m.identity.CurrentUserIdentity(ctx))
}

func (m *Manager) refresh(ctx context.Context, trigger string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.credentialEpoch++
	epoch := m.credentialEpoch
	explicit := m.explicit
	m.mu.Unlock()

	identity := ""
	if explicit == "" {
		identity = m.currentIdentity(ctx)
	}
	cred := m.resolver.Resolve(ctx, explicit, identity)

	m.mu.Lock()
	if m.closed || epoch != m.credentialEpoch {
		m.mu.Unlock()
		m.logDebug(ctx, "credential superseded", map[string]any{
			"event_type": trigger,
			"token":      TokenFingerprint(cred.Token),
		})
		return nil
	}

	if cred.Token == "" {
		wasActive := m.state.AccessToken != "" || m.state.Resident != nil
		m.resetLocked(cred.Identity)
		snapshot := m.state.clone()
		m.publishLocked()
		m.mu.Unlock()
		m.flush()

		m.setSinkUser(ctx, "")
		extra := map[string]any{"trigger": trigger}
		if cred.Err != nil {
			extra["credential_error"] = cred.Err.Error()
		}
		if wasActive {
			m.record(ctx, ActivityActionReset, ActivityStatusOK, snapshot, nil, extra)
		}
		m.logInfo(ctx, "session reset", mergeFields(sessionFields(snapshot), mergeFields(extra, map[string]any{"event_type": trigger})))
		return nil
	}

	if cred.Token == m.state.AccessToken && m.state.Phase != PhaseIdle {
		changed := m.state.Identity != cred.Identity || m.state.Impersonating != cred.Impersonating
		m.state.Identity = cred.Identity
		m.state.Impersonating = cred.Impersonating
		if changed {
			m.publishLocked()
		}
		m.mu.Unlock()
		m.flush()
		return nil
	}

	m.fetchEpoch++
	generation := m.fetchEpoch
	m.state.AccessToken = cred.Token
	m.state.Impersonating = cred.Impersonating
	m.state.Identity = cred.Identity
	m.state.Err = nil
	m.state.Generation = generation
	m.transitionLocked(PhaseResolving)
	m.publishLocked()
	m.mu.Unlock()
	m.flush()

	// Resolve failures are reported out of band and kept on the session.
	_ = m.fetch(ctx, cred.Token, generation, trigger)
	return nil
}

// Reload re-fetches the profile for the current token.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	token := m.state.AccessToken
	if token == "" {
		m.mu.Unlock()
		return NewUnauthenticatedError()
	}
	m.fetchEpoch++
	generation := m.fetchEpoch
	m.state.Generation = generation
	m.state.Err = nil
	m.transitionLocked(PhaseResolving)
	m.publishLocked()
	m.mu.Unlock()
	m.flush()

	return m.fetch(ctx, token, generation, "reload")
}

func (m *Manager) fetch(ctx context.Context, token string, generation uint64, trigger string) error {
	startedAt := m.now()
	profile, err := m.profiles.Resolve(ctx, token)

	m.mu.Lock()
	if m.closed || generation != m.fetchEpoch || token != m.state.AccessToken {
		m.mu.Unlock()
		m.logDebug(ctx, "stale resolve dropped", map[string]any{
			"event_type": "resolve",
			"trigger":    trigger,
			"generation": generation,
			"token":      TokenFingerprint(token),
		})
		// The remote failure is still reported; only the session is left alone.
		if err != nil {
			m.errorSink.Emit(ctx, err)
		}
		return nil
	}

	if err != nil {
		m.state.Err = err
		m.transitionLocked(PhaseError)
		snapshot := m.state.clone()
		m.publishLocked()
		m.mu.Unlock()
		m.flush()

		m.errorSink.Emit(ctx, err)
		m.record(ctx, ActivityActionResolveFailed, ActivityStatusFailed, snapshot, err, map[string]any{"trigger": trigger})
		m.observeOperation(ctx, startedAt, "resolve", err, mergeFields(sessionFields(snapshot), map[string]any{"trigger": trigger}))
		return err
	}

	if profile == nil {
		profile = Profile{}
	}
	m.state.Resident = profile.Clone()
	m.state.Err = nil
	m.transitionLocked(PhaseResolved)
	snapshot := m.state.clone()
	m.publishLocked()
	m.mu.Unlock()
	m.flush()

	m.setSinkUser(ctx, snapshot.Resident.ResidentID())
	m.record(ctx, ActivityActionResolved, ActivityStatusOK, snapshot, nil, map[string]any{"trigger": trigger})
	m.observeOperation(ctx, startedAt, "resolve", nil, mergeFields(sessionFields(snapshot), map[string]any{"trigger": trigger}))
	return nil
}

// Save sends partial to the profile store and merges the outcome into the
// resident. Only one save may be in flight; unset fields are not sent.
func (m *Manager) Save(ctx context.Context, partial Profile) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.state.Saving {
		m.mu.Unlock()
		return NewAlreadySavingError()
	}
	token := m.state.AccessToken
	if token == "" {
		m.mu.Unlock()
		return NewUnauthenticatedError()
	}
	m.saveSeq++
	seq := m.saveSeq
	m.state.Saving = true
	m.publishLocked()
	m.mu.Unlock()
	m.flush()

	startedAt := m.now()
	payload := partial.Compact()
	returned, err := m.profiles.Save(ctx, token, payload)

	m.mu.Lock()
	owned := !m.closed && seq == m.saveSeq
	if owned {
		m.state.Saving = false
	}
	if err != nil {
		if owned {
			m.publishLocked()
		}
		snapshot := m.state.clone()
		m.mu.Unlock()
		m.flush()

		m.errorSink.Emit(ctx, err)
		m.record(ctx, ActivityActionSaveFailed, ActivityStatusFailed, snapshot, err, map[string]any{"fields": payload.Keys()})
		m.observeOperation(ctx, startedAt, "save", err, mergeFields(sessionFields(snapshot), map[string]any{"fields": payload.Keys()}))
		return err
	}

	merged := false
	if owned && token == m.state.AccessToken && m.state.Resident != nil {
		m.state.Resident = m.state.Resident.Merge(payload).Merge(returned)
		merged = true
	}
	if owned {
		m.publishLocked()
	}
	snapshot := m.state.clone()
	m.mu.Unlock()
	m.flush()

	if !merged {
		m.logDebug(ctx, "save result not merged", mergeFields(sessionFields(snapshot), map[string]any{"event_type": "save"}))
	}
	m.record(ctx, ActivityActionSaved, ActivityStatusOK, snapshot, nil, map[string]any{"fields": payload.Keys()})
	m.observeOperation(ctx, startedAt, "save", nil, mergeFields(sessionFields(snapshot), map[string]any{"fields": payload.Keys()}))
	return nil
}

// Login starts the provider's redirect flow. In impersonation mode it
// navigates to the resident's own profile view instead.
func (m *Manager) Login(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	snapshot := m.state.clone()
	impersonating := m.explicit != ""
	m.mu.Unlock()

	startedAt := m.now()
	var err error
	fields := sessionFields(snapshot)
	if impersonating {
		name := snapshot.Resident.ResidentName()
		switch {
		case name == "":
			err = m.errorFactory("resident: resident name is not resolved", goerrors.CategoryBadInput).
				WithTextCode(ErrorBadInput)
		case m.navigator == nil:
			err = m.errorFactory("resident: navigator is not configured", goerrors.CategoryInternal).
				WithTextCode(ErrorInternal)
		default:
			path := "/residents/" + url.PathEscape(name)
			fields["path"] = path
			err = m.navigator.Navigate(ctx, path)
		}
	} else {
		if m.identity == nil {
			err = m.errorFactory("resident: identity provider is not configured", goerrors.CategoryInternal).
				WithTextCode(ErrorInternal)
		} else {
			err = m.identity.LoginWithRedirect(ctx)
		}
	}

	status := ActivityStatusOK
	if err != nil {
		status = ActivityStatusFailed
	}
	m.record(ctx, ActivityActionLogin, status, snapshot, err, nil)
	m.observeOperation(ctx, startedAt, "login", err, fields)
	return err
}

// Logout ends the provider session. It is a no-op in impersonation mode.
// The token goes absent once the provider reports the identity change.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	snapshot := m.state.clone()
	impersonating := m.explicit != ""
	m.mu.Unlock()

	if impersonating {
		m.logDebug(ctx, "logout ignored while impersonating", sessionFields(snapshot))
		return nil
	}

	startedAt := m.now()
	var err error
	if m.identity == nil {
		err = m.errorFactory("resident: identity provider is not configured", goerrors.CategoryInternal).
			WithTextCode(ErrorInternal)
	} else {
		err = m.identity.Logout(ctx, strings.TrimSpace(m.config.Identity.ReturnTo))
	}

	status := ActivityStatusOK
	if err != nil {
		status = ActivityStatusFailed
	}
	m.record(ctx, ActivityActionLogout, status, snapshot, err, nil)
	m.observeOperation(ctx, startedAt, "logout", err, sessionFields(snapshot))
	return err
}

// Close detaches listeners and invalidates in-flight work.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.credentialEpoch++
	m.fetchEpoch++
	m.saveSeq++
	m.listeners = nil
	m.pending = nil
	return nil
}

func (m *Manager) resetLocked(identity string) {
	m.fetchEpoch++
	m.saveSeq++
	if m.state.Phase != PhaseIdle {
		m.transitionLocked(PhaseIdle)
	}
	m.state = Session{
		Phase:      PhaseIdle,
		Identity:   identity,
		Generation: m.fetchEpoch,
		version:    m.state.version,
	}
}

func (m *Manager) transitionLocked(next Phase) {
	current := m.state.Phase
	if current == "" {
		current = PhaseIdle
	}
	if !CanTransition(current, next) {
		m.logWarn(context.Background(), "unexpected phase transition", map[string]any{
			"from": current.String(),
			"to":   next.String(),
		})
	}
	m.state.Phase = next
}

// publishLocked stamps a new version and queues a snapshot for listeners.
func (m *Manager) publishLocked() {
	m.version++
	m.state.version = m.version
	if len(m.listeners) == 0 {
		return
	}
	m.pending = append(m.pending, m.state.clone())
}

// flush delivers queued snapshots outside the lock. A caller that finds a
// delivery loop already running leaves its snapshots to that loop, which keeps
// order and lets listeners call back into the manager.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.pending) > 0 {
		snapshot := m.pending[0]
		m.pending = m.pending[1:]
		targets := append([]listener(nil), m.listeners...)
		m.mu.Unlock()
		for _, target := range targets {
			target.fn(snapshot.clone())
		}
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Manager) setSinkUser(ctx context.Context, residentID string) {
	if scoped, ok := m.errorSink.(ScopedErrorSink); ok {
		scoped.SetUser(ctx, residentID)
	}
}

func (m *Manager) record(
	ctx context.Context,
	action string,
	status ActivityStatus,
	snapshot Session,
	cause error,
	metadata map[string]any,
) {
	if m.activity == nil || !m.config.Activity.IsEnabled() {
		return
	}
	entry := ActivityEntry{
		Action:        action,
		Status:        status,
		ResidentID:    snapshot.Resident.ResidentID(),
		Identity:      snapshot.Identity,
		Impersonating: snapshot.Impersonating,
		Generation:    snapshot.Generation,
		Metadata:      cloneFields(metadata),
		CreatedAt:     m.now().UTC(),
	}
	if cause != nil {
		entry.Error = cause.Error()
		if kind := ErrorKindOf(cause); kind != ErrorKindUnknown {
			entry.Metadata["error_kind"] = string(kind)
		}
	}
	if fingerprint := TokenFingerprint(snapshot.AccessToken); fingerprint != "" {
		entry.Metadata["token"] = fingerprint
	}
	if err := m.activity.Record(ctx, entry); err != nil {
		m.logWarn(ctx, "activity record failed", map[string]any{
			"action": action,
			"error":  err.Error(),
		})
	}
}

func mergeFields(base map[string]any, extra map[string]any) map[string]any {
	out := cloneFields(base)
	for key, value := range extra {
		out[key] = value
	}
	return out
}
