package geometry

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestFilterNil(t *testing.T) {
	var f *Filter
	if !f.Contains(orb.Point{100, 50}) {
		t.Error("nil filter must accept everything")
	}
	if !f.AnyInside(nil) {
		t.Error("nil filter must accept everything")
	}
	if NewFilter() != nil || NewFilter(nil) != nil {
		t.Error("NewFilter without geometry should be nil")
	}
}

func TestFilterRegions(t *testing.T) {
	triangle := orb.Polygon{{{0, 0}, {10, 0}, {0, 10}, {0, 0}}}
	box := orb.Bound{Min: orb.Point{20, 20}, Max: orb.Point{21, 21}}
	f := NewFilter(triangle, box)

	tests := []struct {
		p    orb.Point
		want bool
	}{
		{orb.Point{1, 1}, true},
		{orb.Point{9, 9}, false}, // inside the triangle's bbox only
		{orb.Point{20.5, 20.5}, true},
		{orb.Point{21, 21}, true},
		{orb.Point{15, 15}, false},
		{orb.Point{-1, -1}, false},
	}
	for _, tt := range tests {
		if got := f.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if !f.AnyInside([]orb.Point{{50, 50}, {1, 1}}) {
		t.Error("AnyInside missed an inside point")
	}
	if f.AnyInside([]orb.Point{{50, 50}, {9, 9}}) {
		t.Error("AnyInside accepted only outside points")
	}
	if got := f.Bound(); got.Min != (orb.Point{0, 0}) || got.Max != (orb.Point{21, 21}) {
		t.Errorf("Bound() = %v", got)
	}
}

func TestFilterPolygonHole(t *testing.T) {
	poly := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
	}
	f := NewFilter(poly)
	if f.Contains(orb.Point{5, 5}) {
		t.Error("point in the hole accepted")
	}
	if !f.Contains(orb.Point{2, 2}) {
		t.Error("point in the shell rejected")
	}
}

func TestValidCoordinate(t *testing.T) {
	if !ValidCoordinate(orb.Point{180, -90}) {
		t.Error("boundary rejected")
	}
	if ValidCoordinate(orb.Point{180.1, 0}) || ValidCoordinate(orb.Point{0, 91}) {
		t.Error("out of range accepted")
	}
	if err := ValidateCoordinates(orb.LineString{{0, 0}, {0, 100}}); err == nil {
		t.Error("expected InvalidCoordinateError")
	}
}
