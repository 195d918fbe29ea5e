package token

import "errors"

var (
	// InvalidTokenErr marks an access token whose claims cannot be decoded.
	// Callers treat it exactly like an expired token.
	InvalidTokenErr = errors.New("invalid access token")
)
