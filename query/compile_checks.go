package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-resident/core"
)

var (
	_ gocmd.Querier[GetSessionMessage, core.Session]        = (*GetSessionQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.ActivityPage] = (*ListActivityQuery)(nil)

	_ SessionReader = (*core.Manager)(nil)
)
