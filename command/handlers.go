package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-resident/core"
)

// SessionService is the mutating surface of core.Manager.
type SessionService interface {
	Session() core.Session
	Save(ctx context.Context, partial core.Profile) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Reload(ctx context.Context) error
	SetToken(ctx context.Context, token string) error
}

type SaveProfileCommand struct {
	service SessionService
}

func NewSaveProfileCommand(service SessionService) *SaveProfileCommand {
	return &SaveProfileCommand{service: service}
}

// Execute saves the partial profile and stores the resulting session
// snapshot in the context result collector.
func (c *SaveProfileCommand) Execute(ctx context.Context, msg SaveProfileMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := c.service.Save(ctx, msg.Profile); err != nil {
		return err
	}
	storeResult(ctx, c.service.Session())
	return nil
}

type LoginCommand struct {
	service SessionService
}

func NewLoginCommand(service SessionService) *LoginCommand {
	return &LoginCommand{service: service}
}

func (c *LoginCommand) Execute(ctx context.Context, _ LoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.Login(ctx)
}

type LogoutCommand struct {
	service SessionService
}

func NewLogoutCommand(service SessionService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.Logout(ctx)
}

type ReloadCommand struct {
	service SessionService
}

func NewReloadCommand(service SessionService) *ReloadCommand {
	return &ReloadCommand{service: service}
}

func (c *ReloadCommand) Execute(ctx context.Context, _ ReloadMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := c.service.Reload(ctx); err != nil {
		return err
	}
	storeResult(ctx, c.service.Session())
	return nil
}

type SetTokenCommand struct {
	service SessionService
}

func NewSetTokenCommand(service SessionService) *SetTokenCommand {
	return &SetTokenCommand{service: service}
}

func (c *SetTokenCommand) Execute(ctx context.Context, msg SetTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := c.service.SetToken(ctx, msg.Token); err != nil {
		return err
	}
	storeResult(ctx, c.service.Session())
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
