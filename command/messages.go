package command

import (
	"strings"

	"github.com/goliatone/go-resident/core"
)

const (
	TypeSaveProfile = "resident.command.profile.save"
	TypeLogin       = "resident.command.session.login"
	TypeLogout      = "resident.command.session.logout"
	TypeReload      = "resident.command.session.reload"
	TypeSetToken    = "resident.command.session.set_token"
)

type SaveProfileMessage struct {
	Profile core.Profile
}

func (SaveProfileMessage) Type() string { return TypeSaveProfile }

func (m SaveProfileMessage) Validate() error {
	compact := m.Profile.Compact()
	if len(compact) == 0 {
		return commandValidationError("profile", "at least one field is required")
	}
	for key := range compact {
		if strings.TrimSpace(key) == "" {
			return commandValidationError("profile", "field names must not be blank")
		}
	}
	return nil
}

type LoginMessage struct{}

func (LoginMessage) Type() string { return TypeLogin }

func (LoginMessage) Validate() error { return nil }

type LogoutMessage struct{}

func (LogoutMessage) Type() string { return TypeLogout }

func (LogoutMessage) Validate() error { return nil }

type ReloadMessage struct{}

func (ReloadMessage) Type() string { return TypeReload }

func (ReloadMessage) Validate() error { return nil }

// SetTokenMessage switches the session to an explicit token. An empty token
// hands control back to the identity provider.
type SetTokenMessage struct {
	Token string
}

func (SetTokenMessage) Type() string { return TypeSetToken }

func (m SetTokenMessage) Validate() error {
	if m.Token != strings.TrimSpace(m.Token) {
		return commandValidationError("token", "must not carry surrounding whitespace")
	}
	return nil
}
