package profiles

import (
	"context"
	"net/http"
	"net/url"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/internal/rest"
	"github.com/pkg/errors"
)

const usersPath = "/rest/v1/users"

var _ Repo = (*RestRepo)(nil)

// RestRepo reads and writes the users table through the backend's REST API.
type RestRepo struct {
	client *rest.Client
}

func NewRestRepo(client *rest.Client) *RestRepo {
	return &RestRepo{client: client}
}

func (r *RestRepo) Get(ctx context.Context, userID string) (*Profile, error) {
	var rows []*Profile
	err := r.client.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   usersPath,
		Query: url.Values{
			"select": {"id,username,points,challenges_completed"},
			"id":     {"eq." + userID},
		},
		Out: &rows,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[RestRepo.Get]")
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "[RestRepo.Get] profile %s", userID)
	}
	return rows[0], nil
}

func (r *RestRepo) SetUsername(ctx context.Context, userID, username string) error {
	err := r.client.Do(ctx, rest.Request{
		Method:  http.MethodPatch,
		Path:    usersPath,
		Query:   url.Values{"id": {"eq." + userID}},
		Body:    map[string]string{"username": username},
		Headers: map[string]string{"Prefer": "return=minimal"},
	})
	return errors.Wrap(err, "[RestRepo.SetUsername]")
}
