package repofake

import (
	"sync"

	"github.com/brixsport/go-auth-client/session"
	"github.com/brixsport/go-auth-client/tokenstore"
)

var _ tokenstore.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-memory tokenstore.Repo for tests. It clones on
// both read and write so tests cannot mutate the stored record through a
// shared pointer.
type FakeSessionRepo struct {
	current *session.Session
	sets    int
	clears  int
	lock    sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{}
}

func (r *FakeSessionRepo) Get() (*session.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.current.Clone(), nil
}

func (r *FakeSessionRepo) Set(s *session.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.current = s.Clone()
	r.sets++
	return nil
}

func (r *FakeSessionRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.current = nil
	r.clears++
	return nil
}

// SetCalls returns the number of Set invocations.
func (r *FakeSessionRepo) SetCalls() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.sets
}

// ClearCalls returns the number of Clear invocations.
func (r *FakeSessionRepo) ClearCalls() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.clears
}
