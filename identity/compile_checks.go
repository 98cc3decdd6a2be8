package identity

import "github.com/goliatone/go-resident/core"

var (
	_ core.ProfileStore     = (*ProfileClient)(nil)
	_ core.ProfileStore     = (*TracedProfileStore)(nil)
	_ core.IdentityProvider = (*OAuth2Provider)(nil)
)
