package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/brixsport/go-auth-client/session"
	"github.com/brixsport/go-auth-client/token"
	"github.com/brixsport/go-auth-client/transport"
)

// State is the scheduler's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateArmed      State = "armed"
	StateRefreshing State = "refreshing"
	StateLoggedOut  State = "logged_out" // Terminal until the next login arms a new generation
)

const (
	// DefaultMinRetryInterval floors the backoff between refresh attempts
	// after a network failure; the scheduler never spin-retries faster.
	DefaultMinRetryInterval = 5 * time.Second

	// DefaultMaxRetryInterval caps the backoff growth.
	DefaultMaxRetryInterval = 5 * time.Minute

	// DefaultRefreshTokenTTL is the refresh token's assumed absolute
	// lifetime. Once it has elapsed without a successful refresh, further
	// network retries are pointless and the failure is treated as a
	// rejected refresh token.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// CommitFunc persists a rotated token pair. Implementations must discard the
// pair and return an error when generation no longer identifies the current
// session (e.g. a logout raced the refresh); on success they return the
// committed session and its new generation ID.
type CommitFunc func(generation string, pair *transport.TokenPair) (*session.Session, string, error)

// ExpireFunc is invoked exactly once when a generation's refresh token is
// rejected or its absolute lifetime has passed. Implementations clear the
// store and surface cause to consumers.
type ExpireFunc func(generation string, cause error)

// Scheduler drives the proactive token refresh. It guarantees that a refresh
// fires once per token lifetime and that concurrent refresh requests (the
// proactive timer plus any manual triggers) collapse into a single in-flight
// transport call whose outcome every caller observes.
type Scheduler struct {
	transport        transport.Transport
	commit           CommitFunc
	expire           ExpireFunc
	leadTime         time.Duration
	minRetryInterval time.Duration
	maxRetryInterval time.Duration
	refreshTokenTTL  time.Duration
	nowFunc          func() time.Time
	logger           zerolog.Logger

	group singleflight.Group

	lock         sync.Mutex
	state        State
	generation   string
	refreshToken string
	deadline     time.Time // Absolute give-up time for network retries
	timer        *time.Timer
}

type SchedulerOption func(*Scheduler)

// WithLeadTime sets how long before expiry the proactive refresh fires.
func WithLeadTime(leadTime time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.leadTime = leadTime
	}
}

// WithRetryInterval bounds the backoff between refresh retries.
func WithRetryInterval(minInterval, maxInterval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.minRetryInterval = minInterval
		s.maxRetryInterval = maxInterval
	}
}

// WithRefreshTokenTTL sets the refresh token's assumed absolute lifetime.
func WithRefreshTokenTTL(ttl time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.refreshTokenTTL = ttl
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.nowFunc = now
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func NewScheduler(t transport.Transport, commit CommitFunc, expire ExpireFunc, options ...SchedulerOption) (*Scheduler, error) {
	if t == nil {
		return nil, errors.New("[NewScheduler] transport is required")
	}
	if commit == nil {
		return nil, errors.New("[NewScheduler] commit func is required")
	}
	if expire == nil {
		return nil, errors.New("[NewScheduler] expire func is required")
	}

	s := &Scheduler{
		transport:        t,
		commit:           commit,
		expire:           expire,
		leadTime:         token.DefaultLeadTime,
		minRetryInterval: DefaultMinRetryInterval,
		maxRetryInterval: DefaultMaxRetryInterval,
		refreshTokenTTL:  DefaultRefreshTokenTTL,
		nowFunc:          time.Now,
		logger:           zerolog.Nop(),
		state:            StateIdle,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Arm schedules the proactive refresh for a session generation. The timer
// fires leadTime before expiresAt, or immediately when the token is already
// inside the lead window. Re-arming replaces any previously scheduled timer.
func (s *Scheduler) Arm(generation, refreshToken string, expiresAt time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopTimerLocked()
	s.state = StateArmed
	s.generation = generation
	s.refreshToken = refreshToken
	s.deadline = s.nowFunc().Add(s.refreshTokenTTL)

	delay := expiresAt.Sub(s.nowFunc()) - s.leadTime
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, func() { s.fire(generation) })

	s.logger.Debug().
		Str("generation", generation).
		Time("expires_at", expiresAt).
		Dur("fires_in", delay).
		Msg("proactive refresh armed")
}

// Prime registers a session generation without scheduling the proactive
// timer. Used when the stored token is already expired and the caller drives
// the refresh itself through Refresh.
func (s *Scheduler) Prime(generation, refreshToken string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopTimerLocked()
	s.state = StateArmed
	s.generation = generation
	s.refreshToken = refreshToken
	s.deadline = s.nowFunc().Add(s.refreshTokenTTL)
}

// Stop cancels the pending timer and disarms the scheduler. Called on logout
// and on teardown so no refresh can fire against a cleared store.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopTimerLocked()
	s.state = StateIdle
	s.generation = ""
	s.refreshToken = ""
}

// Refresh performs a single-flight refresh of the current generation. Any
// call arriving while a refresh is in flight attaches to the existing
// operation instead of issuing a second transport call; all callers observe
// the same outcome.
func (s *Scheduler) Refresh(ctx context.Context) (*session.Session, error) {
	s.lock.Lock()
	if s.state == StateLoggedOut {
		s.lock.Unlock()
		return nil, errors.Wrap(session.ExpiredErr, "[Scheduler.Refresh]")
	}
	if s.generation == "" || s.refreshToken == "" {
		s.lock.Unlock()
		return nil, errors.Wrap(session.NotAuthenticatedErr, "[Scheduler.Refresh] nothing armed")
	}
	generation := s.generation
	s.lock.Unlock()

	result, err, _ := s.group.Do(generation, func() (interface{}, error) {
		return s.doRefresh(ctx, generation)
	})
	if err != nil {
		return nil, err
	}
	return result.(*session.Session), nil
}

// fire is the timer entry point. It re-checks the generation before
// refreshing so a timer that raced a logout or re-arm is a no-op.
func (s *Scheduler) fire(generation string) {
	s.lock.Lock()
	if s.generation != generation || s.state == StateLoggedOut {
		s.lock.Unlock()
		return
	}
	s.lock.Unlock()

	if _, err := s.Refresh(context.Background()); err != nil {
		s.logger.Warn().Err(err).Str("generation", generation).Msg("scheduled token refresh failed")
	}
}

func (s *Scheduler) doRefresh(ctx context.Context, generation string) (*session.Session, error) {
	s.lock.Lock()
	if s.generation != generation {
		s.lock.Unlock()
		return nil, errors.New("[Scheduler.doRefresh] superseded generation")
	}
	refreshToken := s.refreshToken
	deadline := s.deadline
	s.state = StateRefreshing
	s.stopTimerLocked()
	s.lock.Unlock()

	remaining := deadline.Sub(s.nowFunc())
	if remaining <= 0 {
		s.terminate(generation)
		return nil, errors.Wrap(session.ExpiredErr, "[Scheduler.doRefresh] refresh token lifetime elapsed")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.minRetryInterval
	bo.MaxInterval = s.maxRetryInterval
	bo.MaxElapsedTime = remaining

	var committed *session.Session
	operation := func() error {
		pair, err := s.transport.Refresh(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, transport.RefreshRejectedErr) {
				return backoff.Permanent(err)
			}
			s.logger.Warn().Err(err).Msg("token refresh attempt failed, backing off")
			return err
		}

		sess, newGeneration, err := s.commit(generation, pair)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "[Scheduler.doRefresh] commit"))
		}
		committed = sess
		s.Arm(newGeneration, sess.RefreshToken, sess.ExpiresAt())
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(err, transport.RefreshRejectedErr) {
			s.terminate(generation)
			return nil, errors.Wrap(session.ExpiredErr, "[Scheduler.doRefresh] refresh rejected")
		}
		if ctx.Err() == nil && !s.nowFunc().Before(deadline) {
			// Retries exhausted the refresh token's own lifetime.
			s.terminate(generation)
			return nil, errors.Wrap(session.ExpiredErr, "[Scheduler.doRefresh] retries exhausted")
		}
		s.rearmRetry(generation)
		return nil, err
	}
	return committed, nil
}

// terminate moves a generation to LoggedOut and notifies the expire callback
// exactly once. A generation superseded in the meantime is left alone.
func (s *Scheduler) terminate(generation string) {
	s.lock.Lock()
	if s.generation != generation {
		s.lock.Unlock()
		return
	}
	s.stopTimerLocked()
	s.state = StateLoggedOut
	s.generation = ""
	s.refreshToken = ""
	s.lock.Unlock()

	s.logger.Info().Str("generation", generation).Msg("refresh token no longer valid, session expired")
	s.expire(generation, session.ExpiredErr)
}

// rearmRetry schedules another attempt after a transient failure whose
// retries were cut short (e.g. the caller's context was cancelled).
func (s *Scheduler) rearmRetry(generation string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.generation != generation || s.state == StateLoggedOut {
		return
	}
	s.state = StateArmed
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.minRetryInterval, func() { s.fire(generation) })
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
