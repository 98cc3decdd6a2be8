package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// fakeIdentity is an identity provider whose token responses are keyed by
// identity. A gate, when set, blocks GetTokenSilently until released.
type fakeIdentity struct {
	mu        sync.Mutex
	identity  string
	tokens    map[string]string
	tokenErr  error
	requests  []TokenRequest
	logins    int
	logouts   []string
	loginErr  error
	logoutErr error
	gates     map[string]chan struct{}
}

func newFakeIdentity(identity string, tokens map[string]string) *fakeIdentity {
	return &fakeIdentity{identity: identity, tokens: tokens, gates: map[string]chan struct{}{}}
}

func (f *fakeIdentity) setIdentity(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = identity
}

func (f *fakeIdentity) gate(identity string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[identity] = ch
	return ch
}

func (f *fakeIdentity) GetTokenSilently(_ context.Context, req TokenRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	identity := f.identity
	gate := f.gates[identity]
	token := f.tokens[identity]
	err := f.tokenErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (f *fakeIdentity) LoginWithRedirect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return f.loginErr
}

func (f *fakeIdentity) Logout(_ context.Context, returnTo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, returnTo)
	return f.logoutErr
}

func (f *fakeIdentity) CurrentUserIdentity(context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity
}

func (f *fakeIdentity) tokenRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type resolveResult struct {
	profile Profile
	err     error
}

type saveCall struct {
	token   string
	partial Profile
}

// fakeProfiles answers resolves per token. Blocked tokens wait on their gate,
// which lets tests complete fetches out of order.
type fakeProfiles struct {
	mu          sync.Mutex
	resolves    map[string]resolveResult
	resolveLog  []string
	gates       map[string]chan struct{}
	started     chan string
	saves       []saveCall
	saveResult  resolveResult
	saveGate    chan struct{}
	saveStarted chan struct{}
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		resolves: map[string]resolveResult{},
		gates:    map[string]chan struct{}{},
	}
}

func (f *fakeProfiles) respond(token string, profile Profile, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves[token] = resolveResult{profile: profile, err: err}
}

func (f *fakeProfiles) block(token string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[token] = ch
	return ch
}

func (f *fakeProfiles) Resolve(_ context.Context, token string) (Profile, error) {
	f.mu.Lock()
	f.resolveLog = append(f.resolveLog, token)
	gate := f.gates[token]
	started := f.started
	f.mu.Unlock()
	if started != nil {
		started <- token
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := f.resolves[token]
	return result.profile.Clone(), result.err
}

func (f *fakeProfiles) Save(_ context.Context, token string, partial Profile) (Profile, error) {
	f.mu.Lock()
	f.saves = append(f.saves, saveCall{token: token, partial: partial.Clone()})
	gate := f.saveGate
	started := f.saveStarted
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveResult.profile.Clone(), f.saveResult.err
}

func (f *fakeProfiles) resolveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resolveLog)
}

func (f *fakeProfiles) saveCalls() []saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]saveCall(nil), f.saves...)
}

type recordingSink struct {
	mu     sync.Mutex
	errors []error
	users  []string
}

func (s *recordingSink) Emit(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func (s *recordingSink) SetUser(_ context.Context, residentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, residentID)
}

func (s *recordingSink) emitted() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}

func (s *recordingSink) scopedUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.users...)
}

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(_ context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	return nil
}

type memoryActivity struct {
	mu      sync.Mutex
	entries []ActivityEntry
	err     error
}

func (a *memoryActivity) Record(_ context.Context, entry ActivityEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memoryActivity) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry.Action)
	}
	return out
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	base := []Option{WithLogger(stubLogger{}), WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}})}
	manager, err := NewManager(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
