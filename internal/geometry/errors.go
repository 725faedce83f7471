package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrUnclosedRing means the fragments cannot be joined into closed rings.
	ErrUnclosedRing = errors.New("geometry: fragments do not close into rings")

	// ErrNoOuterRings means a multipolygon has no outer ring.
	ErrNoOuterRings = errors.New("geometry: no outer rings")

	// ErrUnorientable means a ring is degenerate or self-intersecting.
	ErrUnorientable = errors.New("geometry: ring cannot be consistently oriented")

	// ErrEmptyGeometry means the inner rings covered every outer ring.
	ErrEmptyGeometry = errors.New("geometry: empty after subtracting inner rings")
)

// InvalidCoordinateError reports a coordinate outside lon [-180,180] / lat [-90,90].
type InvalidCoordinateError struct {
	Lon, Lat float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate: lon=%f lat=%f (lat must be ±90, lon must be ±180)", e.Lon, e.Lat)
}
