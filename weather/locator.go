package weather

import (
	"context"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
)

// Locator is a one-shot, permissioned read of the device position.
type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// StaticLocator reports a fixed position. A nil Position behaves like a refused
// location permission.
type StaticLocator struct {
	Position *Coordinates
}

var _ Locator = StaticLocator{}

func (l StaticLocator) Locate(ctx context.Context) (Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return Coordinates{}, err
	}
	if l.Position == nil {
		return Coordinates{}, &apperrors.PermissionDeniedError{Capability: "location"}
	}
	return *l.Position, nil
}
