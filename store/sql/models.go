package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type activityRecord struct {
	bun.BaseModel `bun:"table:resident_session_activity,alias:rsa"`

	ID            string         `bun:"id,pk"`
	Action        string         `bun:"action,notnull"`
	Status        string         `bun:"status,notnull"`
	ResidentID    *string        `bun:"resident_id"`
	Identity      *string        `bun:"identity_subject"`
	Impersonating bool           `bun:"impersonating,notnull"`
	Generation    int64          `bun:"generation,notnull"`
	Error         string         `bun:"error"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
