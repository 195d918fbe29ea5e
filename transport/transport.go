package transport

import (
	"context"

	"github.com/brixsport/go-auth-client/session"
)

// Credentials are the login inputs for the auth service.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is the rotated credential pair returned by a refresh grant.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Transport is the request/response contract to the external auth service.
// Implementations map wire failures onto the package sentinels so callers
// can classify them with errors.Is:
//
//	Login    -> InvalidCredentialsErr | NetworkErr
//	Refresh  -> RefreshRejectedErr | NetworkErr
//	Validate -> UnauthorizedErr | NetworkErr
//	Logout   -> best-effort; failures are non-fatal to local logout
type Transport interface {
	Login(ctx context.Context, creds Credentials) (*session.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Validate(ctx context.Context, accessToken string) (*session.UserProfile, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}
