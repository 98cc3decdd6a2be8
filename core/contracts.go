package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// TokenRequest scopes a silent token request to an API audience and claim set.
type TokenRequest struct {
	Audience string
	Scope    string
}

// IdentityProvider is the external login capability. Tokens are bearer values
// for the profile API; an empty identity means there is no provider session.
type IdentityProvider interface {
	GetTokenSilently(ctx context.Context, req TokenRequest) (string, error)
	LoginWithRedirect(ctx context.Context) error
	Logout(ctx context.Context, returnTo string) error
	CurrentUserIdentity(ctx context.Context) string
}

// ProfileStore reads and writes the remote resident profile.
type ProfileStore interface {
	Resolve(ctx context.Context, token string) (Profile, error)
	Save(ctx context.Context, token string, partial Profile) (Profile, error)
}

// ErrorSink receives failures that are reported out of band.
type ErrorSink interface {
	Emit(ctx context.Context, err error)
}

// ScopedErrorSink tags subsequent reports with the resolved resident.
// An empty residentID clears the scope.
type ScopedErrorSink interface {
	ErrorSink
	SetUser(ctx context.Context, residentID string)
}

type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

type ActivityStatus string

const (
	ActivityStatusOK     ActivityStatus = "ok"
	ActivityStatusFailed ActivityStatus = "failed"
)

const (
	ActivityActionResolved      = "session.resolved"
	ActivityActionResolveFailed = "session.resolve_failed"
	ActivityActionSaved         = "session.saved"
	ActivityActionSaveFailed    = "session.save_failed"
	ActivityActionReset         = "session.reset"
	ActivityActionLogin         = "session.login"
	ActivityActionLogout        = "session.logout"
)

// ActivityEntry is one lifecycle event of a session.
type ActivityEntry struct {
	ID            string
	Action        string
	Status        ActivityStatus
	ResidentID    string
	Identity      string
	Impersonating bool
	Generation    uint64
	Error         string
	Metadata      map[string]any
	CreatedAt     time.Time
}

type ActivitySink interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

type ActivityFilter struct {
	Action     string
	ResidentID string
	Status     ActivityStatus
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

type ActivityPage struct {
	Items   []ActivityEntry
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

type ActivityReader interface {
	List(ctx context.Context, filter ActivityFilter) (ActivityPage, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
