package auth

import "github.com/brixsport/go-auth-client/session"

// State is the authentication view exposed to consumers. It changes in the
// same logical step as every token store mutation, so a reader never
// observes an authenticated state after logout completed or a stale profile
// after a refresh committed.
type State struct {
	User            *session.UserProfile
	IsAuthenticated bool
	Loading         bool
	Err             error
}

// Subscriber receives every state change, synchronously, under the
// controller's lock. Subscribers must be fast and must not call back into
// the controller.
type Subscriber func(State)
