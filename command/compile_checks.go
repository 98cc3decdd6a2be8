package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-resident/core"
)

var (
	_ gocmd.Commander[SaveProfileMessage] = (*SaveProfileCommand)(nil)
	_ gocmd.Commander[LoginMessage]       = (*LoginCommand)(nil)
	_ gocmd.Commander[LogoutMessage]      = (*LogoutCommand)(nil)
	_ gocmd.Commander[ReloadMessage]      = (*ReloadCommand)(nil)
	_ gocmd.Commander[SetTokenMessage]    = (*SetTokenCommand)(nil)

	_ SessionService = (*core.Manager)(nil)
)
