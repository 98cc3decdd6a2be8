package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseResolving Phase = "resolving"
	PhaseResolved  Phase = "resolved"
	PhaseError     Phase = "error"
)

func (p Phase) String() string { return string(p) }

var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseIdle, PhaseResolving},
	PhaseResolving: {PhaseResolving, PhaseResolved, PhaseError, PhaseIdle},
	PhaseResolved:  {PhaseResolved, PhaseResolving, PhaseIdle},
	PhaseError:     {PhaseError, PhaseResolving, PhaseIdle},
}

// CanTransition reports whether the session may move from one phase to another.
func CanTransition(from Phase, to Phase) bool {
	for _, candidate := range phaseTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Session is a read-only snapshot of the resident's authenticated state.
// Snapshots are deep copies; mutating one has no effect on the manager.
type Session struct {
	AccessToken   string
	Phase         Phase
	Resident      Profile
	Saving        bool
	Impersonating bool
	Identity      string
	Err           error
	Generation    uint64

	version uint64
}

func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

func (s Session) Resolving() bool {
	return s.Phase == PhaseResolving
}

// HasResident reports whether a resident profile is available, possibly stale.
func (s Session) HasResident() bool {
	return s.Resident != nil
}

// Fresh reports whether the resident reflects the latest resolution.
func (s Session) Fresh() bool {
	return s.Phase == PhaseResolved && s.Resident != nil
}

func (s Session) clone() Session {
	out := s
	out.Resident = s.Resident.Clone()
	return out
}

// TokenFingerprint returns a short, non-reversible label for a bearer token,
// safe for logs and activity entries.
func TokenFingerprint(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}
