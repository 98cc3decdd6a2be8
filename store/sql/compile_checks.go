package sqlstore

import "github.com/goliatone/go-resident/core"

var (
	_ core.ActivitySink   = (*ActivityStore)(nil)
	_ core.ActivityReader = (*ActivityStore)(nil)
)
