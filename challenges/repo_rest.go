package challenges

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/climate-crusade/internal/rest"
	"github.com/pkg/errors"
)

const challengesPath = "/rest/v1/challenges"

var _ Repo = (*RestRepo)(nil)

type RestRepo struct {
	client *rest.Client
}

func NewRestRepo(client *rest.Client) *RestRepo {
	return &RestRepo{client: client}
}

func (r *RestRepo) List(ctx context.Context) ([]*Challenge, error) {
	var list []*Challenge
	err := r.client.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   challengesPath,
		Query:  url.Values{"select": {"*"}},
		Out:    &list,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[RestRepo.List]")
	}
	return list, nil
}
