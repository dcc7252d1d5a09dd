package geocode

import (
	"context"
	"errors"

	"companioncare/pkg/models"
)

// FallbackAddress is shown when reverse geocoding cannot resolve a location.
// Geocoding failures degrade to it instead of failing the operation.
const FallbackAddress = "Address unavailable"

var ErrNotFound = errors.New("geocode: address not found")

// Geocoder resolves addresses to coordinates and back.
type Geocoder interface {
	Forward(ctx context.Context, address string) (models.LatLng, error)
	Reverse(ctx context.Context, point models.LatLng) (string, error)
}
