// Package core contains the resident session domain: the credential resolver,
// the session state machine and the contracts of its collaborators (identity
// provider, profile store, error sink). Transport and persistence adapters
// depend on core; core must not depend on them.
package core
