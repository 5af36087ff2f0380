package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/climate-crusade/challenges"
)

var _ challenges.Repo = (*FakeChallengeRepo)(nil)

type FakeChallengeRepo struct {
	challenges []*challenges.Challenge
	Err        error
	lock       sync.RWMutex
}

func NewFakeChallengeRepo(seed ...*challenges.Challenge) *FakeChallengeRepo {
	return &FakeChallengeRepo{challenges: seed}
}

func (r *FakeChallengeRepo) Add(c *challenges.Challenge) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.challenges = append(r.challenges, c)
}

func (r *FakeChallengeRepo) List(_ context.Context) ([]*challenges.Challenge, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*challenges.Challenge, len(r.challenges))
	copy(out, r.challenges)
	return out, nil
}
