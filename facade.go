package resident

import (
	"fmt"

	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-resident/adapters/gocommand"
	residentcommand "github.com/goliatone/go-resident/command"
	"github.com/goliatone/go-resident/core"
	residentquery "github.com/goliatone/go-resident/query"
)

type Commands struct {
	SaveProfile *residentcommand.SaveProfileCommand
	Login       *residentcommand.LoginCommand
	Logout      *residentcommand.LogoutCommand
	Reload      *residentcommand.ReloadCommand
	SetToken    *residentcommand.SetTokenCommand
}

type Queries struct {
	GetSession   *residentquery.GetSessionQuery
	ListActivity *residentquery.ListActivityQuery
}

// Facade exposes a session service as go-command handlers.
type Facade struct {
	service  residentcommand.SessionService
	activity core.ActivityReader
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader core.ActivityReader
}

func WithActivityReader(reader core.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service residentcommand.SessionService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("resident: session service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(service)
	}

	facade := &Facade{service: service, activity: reader}
	facade.commands = Commands{
		SaveProfile: residentcommand.NewSaveProfileCommand(service),
		Login:       residentcommand.NewLoginCommand(service),
		Logout:      residentcommand.NewLogoutCommand(service),
		Reload:      residentcommand.NewReloadCommand(service),
		SetToken:    residentcommand.NewSetTokenCommand(service),
	}
	facade.queries = Queries{
		GetSession: residentquery.NewGetSessionQuery(service),
	}
	if reader != nil {
		facade.queries.ListActivity = residentquery.NewListActivityQuery(reader)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() residentcommand.SessionService {
	if f == nil {
		return nil
	}
	return f.service
}

// Register subscribes the facade handlers on the go-command dispatcher.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (gocommand.Subscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("resident: facade is nil")
	}
	return gocommand.RegisterSession(adapter, f.service, f.activity, runnerOpts...)
}

// resolveActivityReader reuses the manager's activity sink when it can also
// list entries.
func resolveActivityReader(service residentcommand.SessionService) core.ActivityReader {
	if reader, ok := service.(core.ActivityReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ManagerDependencies
	})
	if !ok {
		return nil
	}
	reader, _ := provider.Dependencies().ActivitySink.(core.ActivityReader)
	return reader
}
