package tokenstore

import "github.com/brixsport/go-auth-client/session"

// Repo is the persistence boundary for the device's single session record.
// Operations are synchronous and idempotent; Set persists all fields as one
// logical write so readers never observe a partial record. The repo performs
// no validation and no network access.
type Repo interface {
	// Get returns the stored session, or (nil, nil) when absent.
	Get() (*session.Session, error)
	// Set atomically replaces the stored session.
	Set(s *session.Session) error
	// Clear removes the stored session. Clearing an absent session is a no-op.
	Clear() error
}
