package session

import "errors"

var (
	// ExpiredErr is the only session-terminal error surfaced to consumers:
	// the refresh token was rejected or its absolute lifetime has passed,
	// and the user must authenticate again. Raw transport errors are never
	// exposed in its place.
	ExpiredErr = errors.New("session expired, please log in again")

	// NotAuthenticatedErr is returned by operations that require an active
	// session when none exists.
	NotAuthenticatedErr = errors.New("not authenticated")
)
