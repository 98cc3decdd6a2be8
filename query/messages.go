package query

import (
	"github.com/goliatone/go-resident/core"
)

const (
	TypeGetSession   = "resident.query.session.get"
	TypeListActivity = "resident.query.activity.list"
)

type GetSessionMessage struct{}

func (GetSessionMessage) Type() string { return TypeGetSession }

func (GetSessionMessage) Validate() error { return nil }

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "must be >= 0")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "must not be before from")
	}
	if status := m.Filter.Status; status != "" && status != core.ActivityStatusOK && status != core.ActivityStatusFailed {
		return queryValidationError("status", "must be ok or failed")
	}
	return nil
}
