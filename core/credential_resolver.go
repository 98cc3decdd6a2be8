package core

import (
	"context"
	"strings"
)

// Credential is the outcome of one token resolution.
type Credential struct {
	Token         string
	Impersonating bool
	Identity      string
	// Err is a provider failure that was already reported to the error sink.
	Err error
}

// CredentialResolver produces the access token for the current identity:
// an explicit token wins outright, otherwise the identity provider is asked
// for a silent token.
type CredentialResolver struct {
	provider IdentityProvider
	sink     ErrorSink
	request  TokenRequest
}

func NewCredentialResolver(provider IdentityProvider, sink ErrorSink, request TokenRequest) *CredentialResolver {
	if sink == nil {
		sink = NopErrorSink{}
	}
	if strings.TrimSpace(request.Audience) == "" {
		request.Audience = DefaultAudience
	}
	if strings.TrimSpace(request.Scope) == "" {
		request.Scope = DefaultScope
	}
	return &CredentialResolver{
		provider: provider,
		sink:     sink,
		request:  request,
	}
}

func (r *CredentialResolver) Request() TokenRequest {
	if r == nil {
		return TokenRequest{Audience: DefaultAudience, Scope: DefaultScope}
	}
	return r.request
}

// Resolve never fails. Provider errors are emitted to the sink and leave the
// token empty; an empty identity skips the provider entirely.
func (r *CredentialResolver) Resolve(ctx context.Context, explicit string, identity string) Credential {
	explicit = strings.TrimSpace(explicit)
	identity = strings.TrimSpace(identity)
	if explicit != "" {
		return Credential{Token: explicit, Impersonating: true, Identity: identity}
	}
	if r == nil || r.provider == nil || identity == "" {
		return Credential{Identity: identity}
	}

	token, err := r.provider.GetTokenSilently(ctx, r.request)
	if err != nil {
		reported := NewTokenError(err)
		r.sink.Emit(ctx, reported)
		return Credential{Identity: identity, Err: reported}
	}
	return Credential{Token: strings.TrimSpace(token), Identity: identity}
}
