package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/brixsport/go-auth-client/refresh"
	"github.com/brixsport/go-auth-client/session"
	"github.com/brixsport/go-auth-client/token"
	"github.com/brixsport/go-auth-client/tokenstore"
	"github.com/brixsport/go-auth-client/transport"
)

// SessionController is the state machine tying the token store, expiry
// oracle, transport, and refresh scheduler together. It is the sole writer
// of the token store; every other component reads state or requests a
// refresh through it. Construct one instance at application start and pass
// it by reference; there is no hidden package-level instance.
type SessionController struct {
	store     tokenstore.Repo
	transport transport.Transport
	oracle    *token.Oracle
	scheduler *refresh.Scheduler
	logger    zerolog.Logger
	nowFunc   func() time.Time

	leadTime         time.Duration
	minRetryInterval time.Duration
	maxRetryInterval time.Duration
	refreshTokenTTL  time.Duration

	lock        sync.Mutex
	current     *session.Session
	generation  string // Identifies the committed session; rotated on every replacement
	state       State
	subscribers []Subscriber
	loginSeq    uint64 // Last-call-wins guard for concurrent logins
}

type SessionControllerOption func(*SessionController)

// WithLeadTime sets how long before expiry tokens count as expiring soon and
// the proactive refresh fires.
func WithLeadTime(leadTime time.Duration) SessionControllerOption {
	return func(c *SessionController) {
		c.leadTime = leadTime
	}
}

// WithRetryInterval bounds the scheduler's backoff between refresh retries.
func WithRetryInterval(minInterval, maxInterval time.Duration) SessionControllerOption {
	return func(c *SessionController) {
		c.minRetryInterval = minInterval
		c.maxRetryInterval = maxInterval
	}
}

// WithRefreshTokenTTL sets the refresh token's assumed absolute lifetime.
func WithRefreshTokenTTL(ttl time.Duration) SessionControllerOption {
	return func(c *SessionController) {
		c.refreshTokenTTL = ttl
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) SessionControllerOption {
	return func(c *SessionController) {
		c.nowFunc = now
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) SessionControllerOption {
	return func(c *SessionController) {
		c.logger = logger
	}
}

// NewSessionController initializes a controller with required dependencies.
// Optional configuration can be provided via options.
func NewSessionController(store tokenstore.Repo, t transport.Transport, options ...SessionControllerOption) (*SessionController, error) {
	if store == nil {
		return nil, errors.New("[NewSessionController] token store is required")
	}
	if t == nil {
		return nil, errors.New("[NewSessionController] transport is required")
	}

	c := &SessionController{
		store:            store,
		transport:        t,
		leadTime:         token.DefaultLeadTime,
		minRetryInterval: refresh.DefaultMinRetryInterval,
		maxRetryInterval: refresh.DefaultMaxRetryInterval,
		refreshTokenTTL:  refresh.DefaultRefreshTokenTTL,
		nowFunc:          time.Now,
		logger:           zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}

	c.oracle = token.NewOracle(token.WithLeadTime(c.leadTime), token.WithNowFunc(c.nowFunc))

	scheduler, err := refresh.NewScheduler(t, c.commitRefresh, c.expireSession,
		refresh.WithLeadTime(c.leadTime),
		refresh.WithRetryInterval(c.minRetryInterval, c.maxRetryInterval),
		refresh.WithRefreshTokenTTL(c.refreshTokenTTL),
		refresh.WithNowFunc(c.nowFunc),
		refresh.WithLogger(c.logger),
	)
	if err != nil {
		return nil, err
	}
	c.scheduler = scheduler
	return c, nil
}

// State returns a snapshot of the exposed authentication state.
func (c *SessionController) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Subscribe registers a consumer notified on every state change.
func (c *SessionController) Subscribe(fn Subscriber) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Initialize restores the session persisted on this device. A fresh or
// expiring token is confirmed through the validate endpoint and the
// scheduler armed; an expired or undecodable token gets one refresh attempt
// before the controller declares logged out, so a token that lapsed to
// clock skew does not force a visible re-login while the refresh token is
// still good.
func (c *SessionController) Initialize(ctx context.Context) error {
	c.lock.Lock()
	c.setStateLocked(State{Loading: true})
	c.lock.Unlock()

	stored, err := c.store.Get()
	if err != nil {
		c.logger.Warn().Err(err).Msg("stored session unreadable, discarding")
		_ = c.store.Clear()
		stored = nil
	}
	if !stored.Complete() {
		c.lock.Lock()
		c.setStateLocked(State{})
		c.lock.Unlock()
		return nil
	}

	switch c.oracle.Classify(stored.AccessToken) {
	case token.Fresh, token.ExpiringSoon:
		return c.resumeSession(ctx, stored)
	default: // Expired or Invalid: both mean the access token is unusable.
		generation := c.adopt(stored)
		return c.refreshAdopted(ctx, generation, stored)
	}
}

// resumeSession confirms a still-valid stored token and exposes the session.
func (c *SessionController) resumeSession(ctx context.Context, stored *session.Session) error {
	generation := c.adopt(stored)

	profile, err := c.transport.Validate(ctx, stored.AccessToken)
	switch {
	case err == nil:
		c.lock.Lock()
		if c.generation != generation {
			c.lock.Unlock()
			return nil
		}
		stored.User = profile
		if serr := c.store.Set(stored); serr != nil {
			c.logger.Warn().Err(serr).Msg("failed to persist confirmed profile")
		}
		c.current = stored
		c.setStateLocked(State{User: profile, IsAuthenticated: true})
		c.lock.Unlock()

		c.scheduler.Arm(generation, stored.RefreshToken, stored.ExpiresAt())
		return nil

	case errors.Is(err, transport.UnauthorizedErr):
		// The server rejected a token we classified as valid; try one
		// refresh before declaring the session expired.
		return c.refreshAdopted(ctx, generation, stored)

	default:
		// Validate unreachable. Start with the stored profile rather than
		// forcing a re-login; the profile is advisory until the next
		// successful validate or refresh.
		c.logger.Warn().Err(err).Msg("validate unreachable, resuming with stored profile")
		c.lock.Lock()
		if c.generation == generation {
			c.setStateLocked(State{User: stored.User, IsAuthenticated: true})
		}
		c.lock.Unlock()

		c.scheduler.Arm(generation, stored.RefreshToken, stored.ExpiresAt())
		return nil
	}
}

// refreshAdopted performs exactly one guarded refresh for an adopted session.
func (c *SessionController) refreshAdopted(ctx context.Context, generation string, stored *session.Session) error {
	c.scheduler.Prime(generation, stored.RefreshToken)

	if _, err := c.scheduler.Refresh(ctx); err != nil {
		if errors.Is(err, session.ExpiredErr) {
			// The expire callback already cleared the store and state.
			return err
		}
		c.lock.Lock()
		if c.generation == generation {
			c.setStateLocked(State{Err: err})
		}
		c.lock.Unlock()
		return err
	}
	return nil
}

// Login authenticates against the auth service, persists the session, and
// arms the proactive refresh. Safe to call while an earlier attempt is still
// outstanding: only the latest call's result is surfaced.
func (c *SessionController) Login(ctx context.Context, creds transport.Credentials) error {
	c.lock.Lock()
	c.loginSeq++
	attempt := c.loginSeq
	st := c.state
	st.Loading = true
	st.Err = nil
	c.setStateLocked(st)
	c.lock.Unlock()

	sess, err := c.transport.Login(ctx, creds)

	c.lock.Lock()
	if attempt != c.loginSeq {
		// A later login or a logout superseded this attempt.
		c.lock.Unlock()
		return nil
	}
	if err != nil {
		c.setStateLocked(State{Err: err})
		c.lock.Unlock()
		return err
	}

	expiresAt, derr := c.oracle.ExpiresAt(sess.AccessToken)
	if derr != nil {
		c.setStateLocked(State{Err: derr})
		c.lock.Unlock()
		return errors.Wrap(derr, "[SessionController.Login]")
	}
	sess.ExpiresAtEpochMs = expiresAt.UnixMilli()

	if sess.User == nil {
		// The service normally returns the profile alongside the pair;
		// fall back to the advisory decode when it does not.
		if profile, perr := token.DecodeProfile(sess.AccessToken); perr == nil {
			sess.User = profile
		}
	}

	if serr := c.store.Set(sess); serr != nil {
		serr = errors.Wrap(serr, "[SessionController.Login] persist session")
		c.setStateLocked(State{Err: serr})
		c.lock.Unlock()
		return serr
	}

	generation := uuid.New().String()
	c.current = sess
	c.generation = generation
	c.setStateLocked(State{User: sess.User, IsAuthenticated: true})
	c.lock.Unlock()

	c.scheduler.Arm(generation, sess.RefreshToken, expiresAt)
	return nil
}

// Logout clears the scheduler and the token store first, so no race can
// re-arm a refresh once logout has begun, then notifies the auth service
// best-effort. Idempotent.
func (c *SessionController) Logout(ctx context.Context) error {
	c.lock.Lock()
	c.loginSeq++ // Invalidate any in-flight login attempt
	sess := c.current
	c.current = nil
	c.generation = ""
	c.scheduler.Stop()
	clearErr := c.store.Clear()
	c.setStateLocked(State{})
	c.lock.Unlock()

	if clearErr != nil {
		return errors.Wrap(clearErr, "[SessionController.Logout] clear store")
	}

	if sess != nil {
		if err := c.transport.Logout(ctx, sess.AccessToken, sess.RefreshToken); err != nil {
			c.logger.Warn().Err(err).Msg("best-effort server logout failed")
		}
	}
	return nil
}

// RefreshToken manually triggers the scheduler's single-flight refresh,
// typically from a caller that received an unauthorized response. It never
// issues a second concurrent network call.
func (c *SessionController) RefreshToken(ctx context.Context) error {
	c.lock.Lock()
	if c.current == nil {
		c.lock.Unlock()
		return session.NotAuthenticatedErr
	}
	c.lock.Unlock()

	_, err := c.scheduler.Refresh(ctx)
	return err
}

// ClearError clears only the error field.
func (c *SessionController) ClearError() {
	c.lock.Lock()
	defer c.lock.Unlock()
	st := c.state
	st.Err = nil
	c.setStateLocked(st)
}

// Close cancels all pending refresh timers. Call on application teardown.
func (c *SessionController) Close() {
	c.scheduler.Stop()
}

// adopt takes ownership of a stored session under a fresh generation without
// exposing it as authenticated yet.
func (c *SessionController) adopt(s *session.Session) string {
	c.lock.Lock()
	defer c.lock.Unlock()
	generation := uuid.New().String()
	c.current = s
	c.generation = generation
	return generation
}

// commitRefresh is the scheduler's CommitFunc: it persists a rotated pair
// for the given generation, or discards it when a logout or newer session
// superseded that generation.
func (c *SessionController) commitRefresh(generation string, pair *transport.TokenPair) (*session.Session, string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if generation != c.generation || c.current == nil {
		return nil, "", errors.New("[SessionController.commitRefresh] stale refresh result discarded")
	}

	expiresAt, err := c.oracle.ExpiresAt(pair.AccessToken)
	if err != nil {
		return nil, "", errors.Wrap(err, "[SessionController.commitRefresh] refreshed token undecodable")
	}

	newSess := &session.Session{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		User:             c.current.User,
		ExpiresAtEpochMs: expiresAt.UnixMilli(),
	}
	if err := c.store.Set(newSess); err != nil {
		return nil, "", errors.Wrap(err, "[SessionController.commitRefresh] persist session")
	}

	newGeneration := uuid.New().String()
	c.current = newSess
	c.generation = newGeneration
	c.setStateLocked(State{User: newSess.User, IsAuthenticated: true})
	return newSess, newGeneration, nil
}

// expireSession is the scheduler's ExpireFunc: the refresh token for the
// given generation is gone for good, so clear the store and surface the
// session-expired condition.
func (c *SessionController) expireSession(generation string, cause error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if generation != c.generation {
		return
	}
	if err := c.store.Clear(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear store on session expiry")
	}
	c.current = nil
	c.generation = ""
	c.setStateLocked(State{Err: cause})
}

// setStateLocked replaces the exposed state and notifies subscribers in the
// same logical step as the mutation that caused it. Callers hold c.lock.
func (c *SessionController) setStateLocked(st State) {
	c.state = st
	for _, fn := range c.subscribers {
		fn(st)
	}
}
