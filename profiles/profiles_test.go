package profiles_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/internal/rest"
	"github.com/jrsteele09/climate-crusade/internal/utils"
	"github.com/jrsteele09/climate-crusade/profiles"
	"github.com/jrsteele09/climate-crusade/profiles/repofake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_UpdateUsername(t *testing.T) {
	ctx := context.Background()
	repo := repofake.NewFakeProfileRepo(profiles.Profile{ID: "user-1", Username: "greta"})
	svc := profiles.NewService(repo)

	t.Run("trims and stores", func(t *testing.T) {
		changed, err := svc.UpdateUsername(ctx, "user-1", "  planet_saver ")
		require.NoError(t, err)
		require.True(t, changed)

		p, err := svc.Get(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, "planet_saver", p.Username)
	})

	t.Run("unchanged is a no-op", func(t *testing.T) {
		before := repo.Writes()
		changed, err := svc.UpdateUsername(ctx, "user-1", "planet_saver  ")
		require.NoError(t, err)
		require.False(t, changed)
		require.Equal(t, before, repo.Writes())
	})

	t.Run("blank is rejected", func(t *testing.T) {
		_, err := svc.UpdateUsername(ctx, "user-1", "   ")
		require.True(t, apperrors.IsValidation(err))
	})

	t.Run("requires a user", func(t *testing.T) {
		_, err := svc.UpdateUsername(ctx, "", "name")
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.UpdateUsername(ctx, "user-2", "name")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestRestRepo(t *testing.T) {
	var (
		mu      sync.Mutex
		patched map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/users", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("id") != "eq.user-1" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[{"id":"user-1","username":"greta","points":120,"challenges_completed":null}]`))
		case http.MethodPatch:
			assert.Equal(t, "eq.user-1", r.URL.Query().Get("id"))
			mu.Lock()
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&patched))
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	repo := profiles.NewRestRepo(rest.New(srv.URL, "anon", nil))
	ctx := context.Background()

	p, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "greta", p.Username)
	require.Equal(t, 120, p.PointsOrZero())
	require.Equal(t, 0, p.ChallengesCompletedOrZero())
	require.Equal(t, utils.Ptr(120), p.Points)

	_, err = repo.Get(ctx, "user-2")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, repo.SetUsername(ctx, "user-1", "planet_saver"))
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, map[string]string{"username": "planet_saver"}, patched)
}
