package auth

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/brixsport/go-auth-client/session"
	"github.com/brixsport/go-auth-client/token"
)

// TokenSource adapts the controller to oauth2.TokenSource so API clients can
// attach the bearer credential to outgoing requests. A token that is already
// expired triggers the scheduler's single-flight refresh; a merely
// expiring-soon token is returned as-is, since the proactive refresh is
// already scheduled for it.
func (c *SessionController) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &controllerTokenSource{controller: c, ctx: ctx}
}

type controllerTokenSource struct {
	controller *SessionController
	ctx        context.Context
}

func (ts *controllerTokenSource) Token() (*oauth2.Token, error) {
	c := ts.controller

	c.lock.Lock()
	current := c.current
	c.lock.Unlock()

	if current == nil {
		return nil, session.NotAuthenticatedErr
	}

	switch c.oracle.Classify(current.AccessToken) {
	case token.Fresh, token.ExpiringSoon:
		return bearerToken(current), nil
	}

	refreshed, err := c.scheduler.Refresh(ts.ctx)
	if err != nil {
		return nil, err
	}
	return bearerToken(refreshed), nil
}

func bearerToken(s *session.Session) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
		Expiry:      s.ExpiresAt(),
	}
}
