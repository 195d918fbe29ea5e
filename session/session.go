package session

import "time"

// RoleType represents a BrixSport user role carried in the access token.
type RoleType string

const (
	RoleAdmin  RoleType = "admin"  // Can manage competitions, teams, and loggers
	RoleLogger RoleType = "logger" // Can record live match events for assigned competitions
	RoleViewer RoleType = "viewer" // Read-only access to schedules and results
)

// UserProfile describes the authenticated principal. It is returned by the
// auth service alongside the token pair and confirmed through the validate
// endpoint; the locally decoded copy is advisory only and never used for
// authorization decisions.
type UserProfile struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name,omitempty"`
	Email                string   `json:"email,omitempty"`
	Role                 RoleType `json:"role,omitempty"`
	AssignedCompetitions []string `json:"assignedCompetitions,omitempty"`
	Permissions          []string `json:"permissions,omitempty"`
}

// Session is the single persisted credential record for a device. It is
// either absent (logged out) or complete: all four fields present, with the
// user matching the principal encoded in the access token. Replaced
// wholesale on every successful login or refresh, never partially patched.
type Session struct {
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	User             *UserProfile `json:"user"`
	ExpiresAtEpochMs int64        `json:"expiresAtEpochMs"` // Derived once from the access token at set time
}

// Complete reports whether every field of the session record is populated.
func (s *Session) Complete() bool {
	return s != nil &&
		s.AccessToken != "" &&
		s.RefreshToken != "" &&
		s.User != nil && s.User.ID != "" &&
		s.ExpiresAtEpochMs > 0
}

// ExpiresAt returns the derived expiry as a time.Time.
func (s *Session) ExpiresAt() time.Time {
	return time.UnixMilli(s.ExpiresAtEpochMs)
}

// Clone returns a deep copy so that callers can never mutate a stored record
// through a shared pointer.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	copied := *s
	if s.User != nil {
		user := *s.User
		user.AssignedCompetitions = append([]string(nil), s.User.AssignedCompetitions...)
		user.Permissions = append([]string(nil), s.User.Permissions...)
		copied.User = &user
	}
	return &copied
}
