package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// ValidCoordinate reports whether p is a finite WGS84 lon/lat.
func ValidCoordinate(p orb.Point) bool {
	lon, lat := p[0], p[1]
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// ValidateCoordinates returns an error for the first invalid coordinate.
func ValidateCoordinates(ls orb.LineString) error {
	for _, p := range ls {
		if !ValidCoordinate(p) {
			return &InvalidCoordinateError{Lon: p[0], Lat: p[1]}
		}
	}
	return nil
}
