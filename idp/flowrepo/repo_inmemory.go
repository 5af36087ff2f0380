package flowrepo

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Flows older than the TTL are treated as absent and pruned on write.
type InMemoryRepo struct {
	mu    sync.RWMutex
	flows map[string]*Flow
	ttl   time.Duration
	clock clockwork.Clock
}

type Option func(*InMemoryRepo)

func WithClock(clock clockwork.Clock) Option {
	return func(r *InMemoryRepo) {
		r.clock = clock
	}
}

// NewInMemoryRepo creates a new in-memory flow repository
func NewInMemoryRepo(ttl time.Duration, options ...Option) *InMemoryRepo {
	r := &InMemoryRepo{
		flows: make(map[string]*Flow),
		ttl:   ttl,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Upsert stores or updates a flow. CreatedAt is stamped when unset.
func (r *InMemoryRepo) Upsert(state string, flow *Flow) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *flow
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.clock.Now()
	}
	r.flows[state] = &stored

	for s, f := range r.flows {
		if r.expired(f) {
			delete(r.flows, s)
		}
	}
	return nil
}

// Get retrieves a flow by state parameter
func (r *InMemoryRepo) Get(state string) (*Flow, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.flows[state]
	if !exists {
		return nil, ErrNotFound
	}
	if r.expired(flow) {
		return nil, ErrExpired
	}
	copied := *flow
	return &copied, nil
}

func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, state)
	return nil
}

func (r *InMemoryRepo) Only() (string, *Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		state string
		found *Flow
	)
	for s, f := range r.flows {
		if r.expired(f) {
			continue
		}
		if found != nil {
			return "", nil, errors.New("more than one flow pending")
		}
		state, found = s, f
	}
	if found == nil {
		return "", nil, ErrNotFound
	}
	copied := *found
	return state, &copied, nil
}

func (r *InMemoryRepo) expired(f *Flow) bool {
	return r.ttl > 0 && r.clock.Since(f.CreatedAt) > r.ttl
}
