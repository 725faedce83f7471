package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Orienter forces polygon rings into a storage winding convention.
type Orienter interface {
	Orient(g orb.Geometry) (orb.Geometry, error)
}

// Orientation is the winding applied to shells; holes get the opposite.
type Orientation int

const (
	// ShellsCCW winds shells counter-clockwise and holes clockwise (RFC 7946).
	ShellsCCW Orientation = iota
	// ShellsCW winds shells clockwise and holes counter-clockwise (ESRI, WKB writers that expect it).
	ShellsCW
)

// maxIntersectionCheck bounds the quadratic self-intersection test.
const maxIntersectionCheck = 4096

// Orient returns a copy of g with every ring wound per o. Points and lines
// pass through. A ring that is degenerate or crosses itself has no
// consistent orientation and yields ErrUnorientable.
func (o Orientation) Orient(g orb.Geometry) (orb.Geometry, error) {
	switch g := g.(type) {
	case orb.Polygon:
		return o.polygon(g)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			op, err := o.polygon(p)
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", i, err)
			}
			out[i] = op
		}
		return out, nil
	}
	return g, nil
}

func (o Orientation) polygon(p orb.Polygon) (orb.Polygon, error) {
	shell, hole := orb.CCW, orb.CW
	if o == ShellsCW {
		shell, hole = orb.CW, orb.CCW
	}

	out := make(orb.Polygon, len(p))
	for i, r := range p {
		want := hole
		if i == 0 {
			want = shell
		}
		or, err := orientRing(r, want)
		if err != nil {
			return nil, fmt.Errorf("ring %d: %w", i, err)
		}
		out[i] = or
	}
	return out, nil
}

func orientRing(r orb.Ring, want orb.Orientation) (orb.Ring, error) {
	if len(r) < 4 || !r.Closed() {
		return nil, fmt.Errorf("%w: %d coordinates", ErrUnorientable, len(r))
	}
	got := r.Orientation()
	if got == 0 {
		return nil, fmt.Errorf("%w: zero area", ErrUnorientable)
	}
	if len(r) <= maxIntersectionCheck && selfIntersects(r) {
		return nil, fmt.Errorf("%w: self-intersection", ErrUnorientable)
	}

	out := append(orb.Ring(nil), r...)
	if got != want {
		out.Reverse()
	}
	return out, nil
}

// selfIntersects reports whether two non-adjacent edges of r cross.
// Edges that merely touch at a vertex do not count.
func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1 // edges
	for i := 0; i < n; i++ {
		a1, a2 := r[i], r[i+1]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // first and last edge share the closing vertex
			}
			if properCross(a1, a2, r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

func properCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}
