package profiles

import (
	"context"
	"strings"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Profile is a player's row in the users table.
type Profile struct {
	ID                  string `json:"id,omitempty"`
	Username            string `json:"username,omitempty"`
	Points              *int   `json:"points,omitempty"`               // null until the first challenge is scored
	ChallengesCompleted *int   `json:"challenges_completed,omitempty"` // null until the first challenge is completed
}

func (p *Profile) PointsOrZero() int {
	return utils.Value(p.Points)
}

func (p *Profile) ChallengesCompletedOrZero() int {
	return utils.Value(p.ChallengesCompleted)
}

type Repo interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	SetUsername(ctx context.Context, userID, username string) error
}

// Service holds the profile rules shared by every view that edits a profile.
type Service struct {
	repo   Repo
	logger zerolog.Logger
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With().Str("component", "profiles").Logger()
	}
}

func NewService(repo Repo, options ...Option) *Service {
	s := &Service{repo: repo, logger: zerolog.Nop()}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, apperrors.ErrNoSession
	}
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Get]")
	}
	return p, nil
}

// UpdateUsername trims username and stores it. An unchanged username is not written and
// reports changed=false.
func (s *Service) UpdateUsername(ctx context.Context, userID, username string) (changed bool, err error) {
	if userID == "" {
		return false, apperrors.ErrNoSession
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return false, apperrors.NewValidation("username", "Username cannot be empty.")
	}

	current, err := s.repo.Get(ctx, userID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return false, errors.Wrap(err, "[Service.UpdateUsername]")
	}
	if current != nil && current.Username == username {
		return false, nil
	}

	if err := s.repo.SetUsername(ctx, userID, username); err != nil {
		return false, errors.Wrap(err, "[Service.UpdateUsername]")
	}
	s.logger.Info().Str("user_id", userID).Msg("username updated")
	return true, nil
}
