package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTaxonomy_SurvivesWrapping(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		err := pkgerrors.Wrap(apperrors.NewValidation("email", "invalid email format"), "[SignIn]")
		require.True(t, apperrors.IsValidation(err))
		require.False(t, apperrors.IsAuth(err))
		require.Contains(t, err.Error(), "email: invalid email format")
	})

	t.Run("auth keeps cause", func(t *testing.T) {
		cause := fmt.Errorf("invalid_grant")
		err := fmt.Errorf("outer: %w", apperrors.NewAuth("Invalid login credentials", cause))
		require.True(t, apperrors.IsAuth(err))
		require.ErrorIs(t, err, cause)

		var ae *apperrors.AuthError
		require.True(t, apperrors.As(err, &ae))
		require.Equal(t, "Invalid login credentials", ae.Message)
	})

	t.Run("transient", func(t *testing.T) {
		err := apperrors.NewTransient("refresh", apperrors.ErrNotFound)
		require.True(t, apperrors.IsTransient(err))
		require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("permission denied", func(t *testing.T) {
		err := apperrors.Wrapf(&apperrors.PermissionDeniedError{Capability: "location"}, "locate")
		require.True(t, apperrors.IsPermissionDenied(err))
		require.Equal(t, "locate: permission to access location was denied", err.Error())
	})

	t.Run("wrapf nil", func(t *testing.T) {
		require.NoError(t, apperrors.Wrapf(nil, "nothing"))
	})
}
