package refresh_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/brixsport/go-auth-client/refresh"
	"github.com/brixsport/go-auth-client/session"
	"github.com/brixsport/go-auth-client/transport"
	"github.com/brixsport/go-auth-client/transport/transportfake"
)

const testGeneration = "generation-1"

type schedulerFixture struct {
	transport   *transportfake.FakeTransport
	scheduler   *refresh.Scheduler
	commits     atomic.Int32
	expirations atomic.Int32
}

func setupScheduler(t *testing.T, options ...refresh.SchedulerOption) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{transport: transportfake.NewFakeTransport()}

	commit := func(generation string, pair *transport.TokenPair) (*session.Session, string, error) {
		f.commits.Add(1)
		return &session.Session{
			AccessToken:      pair.AccessToken,
			RefreshToken:     pair.RefreshToken,
			User:             &session.UserProfile{ID: "user-1", Role: session.RoleLogger},
			ExpiresAtEpochMs: time.Now().Add(time.Hour).UnixMilli(),
		}, "generation-2", nil
	}
	expire := func(generation string, cause error) {
		f.expirations.Add(1)
	}

	opts := append([]refresh.SchedulerOption{
		refresh.WithRetryInterval(time.Millisecond, 5*time.Millisecond),
	}, options...)

	scheduler, err := refresh.NewScheduler(f.transport, commit, expire, opts...)
	require.NoError(t, err)
	t.Cleanup(scheduler.Stop)

	f.scheduler = scheduler
	return f
}

func TestRefreshSingleFlight(t *testing.T) {
	f := setupScheduler(t)

	gate := make(chan struct{})
	f.transport.RefreshFunc = func(refreshToken string) (*transport.TokenPair, error) {
		<-gate
		return &transport.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
	}

	f.scheduler.Prime(testGeneration, "refresh-1")

	const callers = 8
	results := make([]*session.Session, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.scheduler.Refresh(context.Background())
		}(i)
	}

	// Let every caller attach to the in-flight operation before releasing it.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, 1, f.transport.RefreshCalls())
	require.Equal(t, int32(1), f.commits.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "access-2", results[i].AccessToken)
	}
}

func TestRefreshRejectedIsTerminal(t *testing.T) {
	f := setupScheduler(t)
	f.transport.RefreshFunc = func(refreshToken string) (*transport.TokenPair, error) {
		return nil, transport.RefreshRejectedErr
	}

	f.scheduler.Prime(testGeneration, "refresh-1")

	_, err := f.scheduler.Refresh(context.Background())
	require.ErrorIs(t, err, session.ExpiredErr)
	require.Equal(t, 1, f.transport.RefreshCalls())
	require.Equal(t, int32(1), f.expirations.Load())
	require.Equal(t, refresh.StateLoggedOut, f.scheduler.State())

	// Terminal: no further transport calls, same classification.
	_, err = f.scheduler.Refresh(context.Background())
	require.ErrorIs(t, err, session.ExpiredErr)
	require.Equal(t, 1, f.transport.RefreshCalls())
}

func TestNetworkFailureRetriesWithBackoff(t *testing.T) {
	f := setupScheduler(t)

	var attempts atomic.Int32
	f.transport.RefreshFunc = func(refreshToken string) (*transport.TokenPair, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.Wrap(transport.NetworkErr, "connection refused")
		}
		return &transport.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
	}

	f.scheduler.Prime(testGeneration, "refresh-1")

	sess, err := f.scheduler.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-2", sess.AccessToken)
	require.Equal(t, int32(3), attempts.Load())
	require.Equal(t, int32(0), f.expirations.Load())
}

func TestArmFiresProactiveRefresh(t *testing.T) {
	f := setupScheduler(t, refresh.WithLeadTime(20*time.Millisecond))
	f.transport.RefreshFunc = func(refreshToken string) (*transport.TokenPair, error) {
		return &transport.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
	}

	f.scheduler.Arm(testGeneration, "refresh-1", time.Now().Add(60*time.Millisecond))

	// On success the scheduler rearms for the rotated pair.
	require.Eventually(t, func() bool {
		return f.transport.RefreshCalls() == 1 &&
			f.commits.Load() == 1 &&
			f.scheduler.State() == refresh.StateArmed
	}, time.Second, 5*time.Millisecond)
}

func TestStopCancelsPendingTimer(t *testing.T) {
	f := setupScheduler(t, refresh.WithLeadTime(time.Millisecond))
	f.transport.RefreshFunc = func(refreshToken string) (*transport.TokenPair, error) {
		return &transport.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
	}

	f.scheduler.Arm(testGeneration, "refresh-1", time.Now().Add(30*time.Millisecond))
	f.scheduler.Stop()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, f.transport.RefreshCalls())
	require.Equal(t, refresh.StateIdle, f.scheduler.State())
}

func TestRefreshTokenLifetimeElapsed(t *testing.T) {
	f := setupScheduler(t, refresh.WithRefreshTokenTTL(time.Nanosecond))

	f.scheduler.Prime(testGeneration, "refresh-1")
	time.Sleep(time.Millisecond)

	_, err := f.scheduler.Refresh(context.Background())
	require.ErrorIs(t, err, session.ExpiredErr)
	require.Equal(t, 0, f.transport.RefreshCalls())
	require.Equal(t, int32(1), f.expirations.Load())
	require.Equal(t, refresh.StateLoggedOut, f.scheduler.State())
}

func TestRefreshWithoutSessionArmed(t *testing.T) {
	f := setupScheduler(t)

	_, err := f.scheduler.Refresh(context.Background())
	require.ErrorIs(t, err, session.NotAuthenticatedErr)
	require.Equal(t, 0, f.transport.RefreshCalls())
}
