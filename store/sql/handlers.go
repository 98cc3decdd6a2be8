package sqlstore

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Activity ids are uuid strings; malformed ids map to uuid.Nil.
func activityHandlers() repository.ModelHandlers[*activityRecord] {
	return repository.ModelHandlers[*activityRecord]{
		NewRecord: func() *activityRecord { return new(activityRecord) },
		GetID: func(record *activityRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			id, err := uuid.Parse(record.ID)
			if err != nil {
				return uuid.Nil
			}
			return id
		},
		SetID: func(record *activityRecord, id uuid.UUID) {
			if record != nil {
				record.ID = id.String()
			}
		},
		GetIdentifier: func() string { return "id" },
		GetIdentifierValue: func(record *activityRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
	}
}
