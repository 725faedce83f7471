package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// netArea is shell area minus hole area, independent of ring winding.
func netArea(g orb.Geometry) float64 {
	var polys []orb.Polygon
	switch g := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		polys = g
	}
	var area float64
	for _, p := range polys {
		for i, r := range p {
			a := math.Abs(planar.Area(r))
			if i == 0 {
				area += a
			} else {
				area -= a
			}
		}
	}
	return area
}

func square(x, y, size float64) orb.LineString {
	return orb.LineString{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}
}

func TestBuildGeometrySingleOuter(t *testing.T) {
	a := square(0, 0, 10)
	g, err := BuildGeometry([]orb.LineString{a}, nil)
	if err != nil {
		t.Fatal(err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		t.Fatalf("got %T, want orb.Polygon", g)
	}
	if len(poly) != 1 || !orb.Equal(poly[0], orb.Ring(a)) {
		t.Errorf("got %v, want ring %v", poly, a)
	}
}

func TestBuildGeometryWithHole(t *testing.T) {
	g, err := BuildGeometry(
		[]orb.LineString{square(0, 0, 10)},
		[]orb.LineString{square(2, 2, 3)},
	)
	if err != nil {
		t.Fatal(err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		t.Fatalf("got %T, want orb.Polygon", g)
	}
	if len(poly) != 2 {
		t.Fatalf("got %d rings, want shell and one hole", len(poly))
	}
	if got := math.Abs(planar.Area(poly[0])); math.Abs(got-100) > 1e-9 {
		t.Errorf("shell area = %f", got)
	}
	if got := math.Abs(planar.Area(poly[1])); math.Abs(got-9) > 1e-9 {
		t.Errorf("hole area = %f", got)
	}
	if planar.PolygonContains(poly, orb.Point{3, 3}) {
		t.Error("point inside the hole is reported inside the polygon")
	}
	if !planar.PolygonContains(poly, orb.Point{8, 8}) {
		t.Error("point in the shell is reported outside")
	}
}

func TestBuildGeometryDisjointOuters(t *testing.T) {
	g, err := BuildGeometry([]orb.LineString{square(0, 0, 1), square(5, 5, 1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mp, ok := g.(orb.MultiPolygon)
	if !ok {
		t.Fatalf("got %T, want orb.MultiPolygon", g)
	}
	if len(mp) != 2 || len(mp[0]) != 1 || len(mp[1]) != 1 {
		t.Errorf("got %v", mp)
	}
}

// TestBuildGeometryHoleInOneShell subtracts a hole that lies in only one of
// two shells; the other shell is untouched.
func TestBuildGeometryHoleInOneShell(t *testing.T) {
	g, err := BuildGeometry(
		[]orb.LineString{square(0, 0, 10), square(20, 0, 10)},
		[]orb.LineString{square(2, 2, 2)},
	)
	if err != nil {
		t.Fatal(err)
	}
	mp, ok := g.(orb.MultiPolygon)
	if !ok {
		t.Fatalf("got %T, want orb.MultiPolygon", g)
	}
	if len(mp) != 2 {
		t.Fatalf("got %d polygons", len(mp))
	}
	holes := len(mp[0]) - 1 + len(mp[1]) - 1
	if holes != 1 {
		t.Errorf("got %d holes, want 1", holes)
	}
	if got := netArea(mp); math.Abs(got-196) > 1e-6 {
		t.Errorf("area = %f, want 196", got)
	}
}

func TestBuildGeometryEdgeSharingShellsStaySeparate(t *testing.T) {
	shells := []orb.LineString{square(0, 0, 10), square(10, 0, 10)}

	for _, tt := range []struct {
		name  string
		inner []orb.LineString
		holes int
		area  float64
	}{
		{name: "no holes", area: 200},
		{name: "hole in first shell", inner: []orb.LineString{square(2, 2, 2)}, holes: 1, area: 196},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g, err := BuildGeometry(shells, tt.inner)
			if err != nil {
				t.Fatal(err)
			}
			mp, ok := g.(orb.MultiPolygon)
			if !ok {
				t.Fatalf("got %T, want orb.MultiPolygon", g)
			}
			if len(mp) != 2 {
				t.Fatalf("got %d polygons, want 2", len(mp))
			}
			holes := len(mp[0]) - 1 + len(mp[1]) - 1
			if holes != tt.holes {
				t.Errorf("got %d holes, want %d", holes, tt.holes)
			}
			if got := netArea(mp); math.Abs(got-tt.area) > 1e-6 {
				t.Errorf("area = %f, want %f", got, tt.area)
			}
		})
	}
}

func TestBuildGeometryHoleCoveringShell(t *testing.T) {
	_, err := BuildGeometry(
		[]orb.LineString{square(2, 2, 2)},
		[]orb.LineString{square(0, 0, 10)},
	)
	if !errors.Is(err, ErrEmptyGeometry) {
		t.Errorf("got %v, want ErrEmptyGeometry", err)
	}
}

func TestBuildGeometryDisjointHoleIsNoop(t *testing.T) {
	g, err := BuildGeometry(
		[]orb.LineString{square(0, 0, 10)},
		[]orb.LineString{square(50, 50, 1)},
	)
	if err != nil {
		t.Fatal(err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		t.Fatalf("got %T", g)
	}
	if len(poly) != 1 {
		t.Errorf("got %d rings, want 1", len(poly))
	}
	if got := netArea(poly); math.Abs(got-100) > 1e-9 {
		t.Errorf("area = %f", got)
	}
}

func TestBuildGeometryOverlappingHolesAreUnioned(t *testing.T) {
	g, err := BuildGeometry(
		[]orb.LineString{square(0, 0, 10)},
		[]orb.LineString{square(2, 2, 4), square(4, 4, 4)},
	)
	if err != nil {
		t.Fatal(err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		t.Fatalf("got %T", g)
	}
	if len(poly) != 2 {
		t.Fatalf("got %d rings, want shell and one merged hole", len(poly))
	}
	// 100 - (16 + 16 - 4)
	if got := netArea(poly); math.Abs(got-72) > 1e-6 {
		t.Errorf("area = %f, want 72", got)
	}
}

func TestBuildGeometryFailures(t *testing.T) {
	if _, err := BuildGeometry(nil, []orb.LineString{square(0, 0, 1)}); !errors.Is(err, ErrNoOuterRings) {
		t.Errorf("no outer: got %v", err)
	}
	open := []orb.LineString{{{0, 0}, {1, 0}, {1, 1}}}
	if _, err := BuildGeometry(open, nil); !errors.Is(err, ErrUnclosedRing) {
		t.Errorf("open outer: got %v", err)
	}
	if _, err := BuildGeometry([]orb.LineString{square(0, 0, 5)}, open); !errors.Is(err, ErrUnclosedRing) {
		t.Errorf("open inner: got %v", err)
	}
}
