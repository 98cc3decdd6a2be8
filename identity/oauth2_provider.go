package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-resident/core"
	"golang.org/x/oauth2"
)

var (
	ErrLoginRequired = errors.New("identity: login required")
	ErrUnknownState  = errors.New("identity: unknown or expired login state")
)

type OAuth2Config struct {
	// Domain is the identity tenant, either a host or an absolute base URL.
	Domain      string
	ClientID    string
	RedirectURL string
	Audience    string
	Scope       string
	HTTPClient  *http.Client
	Navigator   core.Navigator
}

// OAuth2Provider is an authorization code + PKCE identity provider backed by
// golang.org/x/oauth2. Tokens are refreshed through the oauth2 token source.
type OAuth2Provider struct {
	oauth     *oauth2.Config
	base      string
	audience  string
	navigator core.Navigator
	client    *http.Client

	mu       sync.Mutex
	source   oauth2.TokenSource
	identity string
	pending  map[string]string
}

func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.Domain), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "https://" + base
	}
	parsed, err := url.Parse(base)
	if base == "" || err != nil || parsed.Host == "" {
		return nil, goerrors.New(fmt.Sprintf("identity: domain %q is invalid", cfg.Domain), goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, goerrors.New("identity: client_id is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = core.DefaultAudience
	}
	scope := strings.TrimSpace(cfg.Scope)
	if scope == "" {
		scope = core.DefaultScope
	}
	return &OAuth2Provider{
		oauth: &oauth2.Config{
			ClientID:    strings.TrimSpace(cfg.ClientID),
			RedirectURL: strings.TrimSpace(cfg.RedirectURL),
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: strings.Fields(scope),
		},
		base:      base,
		audience:  audience,
		navigator: cfg.Navigator,
		client:    cfg.HTTPClient,
		pending:   map[string]string{},
	}, nil
}

func (p *OAuth2Provider) clientContext(ctx context.Context) context.Context {
	if p.client != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}
	return ctx
}

// GetTokenSilently returns a valid access token, refreshing it when the
// cached one expired. It fails with ErrLoginRequired when no login completed.
func (p *OAuth2Provider) GetTokenSilently(ctx context.Context, req core.TokenRequest) (string, error) {
	if audience := strings.TrimSpace(req.Audience); audience != "" && audience != p.audience {
		return "", fmt.Errorf("identity: audience %q is not configured", audience)
	}
	p.mu.Lock()
	source := p.source
	p.mu.Unlock()
	if source == nil {
		return "", ErrLoginRequired
	}
	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("identity: refresh token: %w", err)
	}
	if !token.Valid() {
		return "", ErrLoginRequired
	}
	return token.AccessToken, nil
}

// LoginWithRedirect navigates to the authorize endpoint. The generated state
// must come back through CompleteLogin.
func (p *OAuth2Provider) LoginWithRedirect(ctx context.Context) error {
	authURL, err := p.AuthCodeURL()
	if err != nil {
		return err
	}
	return p.navigate(ctx, authURL)
}

// AuthCodeURL registers a new login attempt and returns its authorize URL.
func (p *OAuth2Provider) AuthCodeURL() (string, error) {
	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()

	p.mu.Lock()
	p.pending[state] = verifier
	p.mu.Unlock()

	return p.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("audience", p.audience),
	), nil
}

// CompleteLogin exchanges the authorization code and returns the subject of
// the new identity.
func (p *OAuth2Provider) CompleteLogin(ctx context.Context, code string, state string) (string, error) {
	p.mu.Lock()
	verifier, ok := p.pending[state]
	delete(p.pending, state)
	p.mu.Unlock()
	if !ok {
		return "", ErrUnknownState
	}
	if strings.TrimSpace(code) == "" {
		return "", goerrors.New("identity: authorization code is required", goerrors.CategoryBadInput).
			WithTextCode(core.ErrorBadInput)
	}

	token, err := p.oauth.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("identity: exchange code: %w", err)
	}
	subject := subjectOf(token)
	if subject == "" {
		return "", ErrMissingSubject
	}
	// the token source outlives the callback request
	source := p.oauth.TokenSource(p.clientContext(context.Background()), token)

	p.mu.Lock()
	p.source = source
	p.identity = subject
	p.mu.Unlock()
	return subject, nil
}

func (p *OAuth2Provider) Logout(ctx context.Context, returnTo string) error {
	p.mu.Lock()
	p.source = nil
	p.identity = ""
	p.mu.Unlock()
	return p.navigate(ctx, p.LogoutURL(returnTo))
}

func (p *OAuth2Provider) LogoutURL(returnTo string) string {
	query := url.Values{}
	query.Set("client_id", p.oauth.ClientID)
	if returnTo = strings.TrimSpace(returnTo); returnTo != "" {
		query.Set("returnTo", returnTo)
	}
	return p.base + "/v2/logout?" + query.Encode()
}

func (p *OAuth2Provider) CurrentUserIdentity(context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

func (p *OAuth2Provider) navigate(ctx context.Context, target string) error {
	if p.navigator == nil {
		return goerrors.New("identity: navigator is not configured", goerrors.CategoryInternal).
			WithTextCode(core.ErrorInternal)
	}
	return p.navigator.Navigate(ctx, target)
}

func subjectOf(token *oauth2.Token) string {
	if raw, ok := token.Extra("id_token").(string); ok {
		if subject, err := SubjectFromToken(raw); err == nil {
			return subject
		}
	}
	subject, _ := SubjectFromToken(token.AccessToken)
	return subject
}
