package transport

import "errors"

var (
	// InvalidCredentialsErr is surfaced to the user on a rejected login.
	// State remains logged out; no retry.
	InvalidCredentialsErr = errors.New("invalid credentials")

	// UnauthorizedErr means the access token was rejected by the validate
	// endpoint. Callers attempt one refresh before declaring the session
	// expired.
	UnauthorizedErr = errors.New("access token unauthorized")

	// RefreshRejectedErr means the refresh token itself is invalid or
	// expired. Terminal for the session; no retry.
	RefreshRejectedErr = errors.New("refresh token rejected")

	// NetworkErr is a transient transport failure. Retried with bounded
	// backoff; never surfaced as a hard failure on the first occurrence.
	NetworkErr = errors.New("auth service unreachable")
)
