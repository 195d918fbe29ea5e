package transportfake

import (
	"context"
	"sync"

	"github.com/brixsport/go-auth-client/session"
	"github.com/brixsport/go-auth-client/transport"
)

var _ transport.Transport = (*FakeTransport)(nil)

// FakeTransport is a scripted transport.Transport for tests. Each operation
// delegates to the corresponding Func field and counts its invocations; a
// nil Func fails the call with the operation's authorization sentinel.
type FakeTransport struct {
	LoginFunc    func(creds transport.Credentials) (*session.Session, error)
	RefreshFunc  func(refreshToken string) (*transport.TokenPair, error)
	ValidateFunc func(accessToken string) (*session.UserProfile, error)
	LogoutFunc   func(accessToken, refreshToken string) error

	loginCalls    int
	refreshCalls  int
	validateCalls int
	logoutCalls   int
	lock          sync.Mutex
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (f *FakeTransport) Login(_ context.Context, creds transport.Credentials) (*session.Session, error) {
	f.lock.Lock()
	f.loginCalls++
	fn := f.LoginFunc
	f.lock.Unlock()

	if fn == nil {
		return nil, transport.InvalidCredentialsErr
	}
	return fn(creds)
}

func (f *FakeTransport) Refresh(_ context.Context, refreshToken string) (*transport.TokenPair, error) {
	f.lock.Lock()
	f.refreshCalls++
	fn := f.RefreshFunc
	f.lock.Unlock()

	if fn == nil {
		return nil, transport.RefreshRejectedErr
	}
	return fn(refreshToken)
}

func (f *FakeTransport) Validate(_ context.Context, accessToken string) (*session.UserProfile, error) {
	f.lock.Lock()
	f.validateCalls++
	fn := f.ValidateFunc
	f.lock.Unlock()

	if fn == nil {
		return nil, transport.UnauthorizedErr
	}
	return fn(accessToken)
}

func (f *FakeTransport) Logout(_ context.Context, accessToken, refreshToken string) error {
	f.lock.Lock()
	f.logoutCalls++
	fn := f.LogoutFunc
	f.lock.Unlock()

	if fn == nil {
		return nil
	}
	return fn(accessToken, refreshToken)
}

func (f *FakeTransport) LoginCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.loginCalls
}

func (f *FakeTransport) RefreshCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.refreshCalls
}

func (f *FakeTransport) ValidateCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.validateCalls
}

func (f *FakeTransport) LogoutCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.logoutCalls
}
