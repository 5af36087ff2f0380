package repofake

import (
	"context"
	"sync"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/profiles"
)

var _ profiles.Repo = (*FakeProfileRepo)(nil)

type FakeProfileRepo struct {
	profiles map[string]profiles.Profile
	writes   int
	lock     sync.RWMutex
}

func NewFakeProfileRepo(seed ...profiles.Profile) *FakeProfileRepo {
	r := &FakeProfileRepo{profiles: make(map[string]profiles.Profile)}
	for _, p := range seed {
		r.profiles[p.ID] = p
	}
	return r
}

func (r *FakeProfileRepo) Get(_ context.Context, userID string) (*profiles.Profile, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &p, nil
}

func (r *FakeProfileRepo) SetUsername(_ context.Context, userID, username string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	p, ok := r.profiles[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	p.Username = username
	r.profiles[userID] = p
	r.writes++
	return nil
}

// Writes reports how many username updates reached the repo.
func (r *FakeProfileRepo) Writes() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.writes
}
