package auth

import (
	"time"

	"github.com/santierhq/santier/internal/models"
)

// SessionState is the derived lifecycle state of a session row. Rotated,
// Revoked and Expired are all terminal; only Active sessions can refresh.
type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionRotated SessionState = "rotated"
	SessionRevoked SessionState = "revoked"
	SessionExpired SessionState = "expired"
)

// StateOf derives the lifecycle state from the persisted columns. A revoked
// session with a rotation link is Rotated (consumed legitimately); revoked
// without one means logout or a reuse cascade.
func StateOf(s *models.Session, now time.Time) SessionState {
	switch {
	case s.RevokedAt != nil && s.ReplacedByID != nil:
		return SessionRotated
	case s.RevokedAt != nil:
		return SessionRevoked
	case !s.ExpiresAt.After(now):
		return SessionExpired
	default:
		return SessionActive
	}
}

// Refreshable reports whether a refresh presented now may consume the session.
func (st SessionState) Refreshable() bool {
	return st == SessionActive
}

// Compromised reports whether presenting this session's token again signals
// reuse of an already-consumed credential.
func (st SessionState) Compromised() bool {
	return st == SessionRotated || st == SessionRevoked
}
