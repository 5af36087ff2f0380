package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/climate-crusade/session"
)

type FakeSessionStore struct {
	lock    sync.RWMutex
	stored  *session.Session
	saves   int
	LoadErr error
}

func NewFakeSessionStore() *FakeSessionStore {
	return &FakeSessionStore{}
}

func (s *FakeSessionStore) Load(context.Context) (*session.Session, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.stored == nil {
		return nil, nil
	}
	c := *s.stored
	return &c, nil
}

func (s *FakeSessionStore) Save(_ context.Context, sess *session.Session) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.saves++
	if sess == nil {
		s.stored = nil
		return nil
	}
	c := *sess
	s.stored = &c
	return nil
}

func (s *FakeSessionStore) Clear(context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stored = nil
	return nil
}

// Stored returns the session currently held, or nil.
func (s *FakeSessionStore) Stored() *session.Session {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.stored == nil {
		return nil
	}
	c := *s.stored
	return &c
}

func (s *FakeSessionStore) Saves() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.saves
}
