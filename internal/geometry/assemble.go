package geometry

import (
	"math"
	"sort"

	polyclip "github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// BuildGeometry assembles a polygon or multipolygon from outer and inner
// sequences. One outer ring yields an orb.Polygon, several yield an
// orb.MultiPolygon with one polygon per ring.
//
// Inner rings are unioned and the union is subtracted from each shell on
// its own, so shells that share an edge stay separate polygons. Holes are
// not matched to shells; a hole that lies in no shell leaves the result
// unchanged. A hole that cuts a shell in two yields a polygon per piece.
func BuildGeometry(outer, inner []orb.LineString) (orb.Geometry, error) {
	shells, err := BuildRings(outer)
	if err != nil {
		return nil, err
	}
	if len(shells) == 0 {
		return nil, ErrNoOuterRings
	}
	holes, err := BuildRings(inner)
	if err != nil {
		return nil, err
	}

	var mp orb.MultiPolygon
	if len(holes) == 0 {
		for _, r := range shells {
			mp = append(mp, orb.Polygon{r})
		}
	} else {
		cut := union(holes)
		for _, r := range shells {
			clipped := polyclip.Polygon{toContour(r)}.Construct(polyclip.DIFFERENCE, cut)
			mp = append(mp, fromContours(clipped)...)
		}
	}

	switch len(mp) {
	case 0:
		return nil, ErrEmptyGeometry
	case 1:
		return mp[0], nil
	}
	return mp, nil
}

func union(rings []orb.Ring) polyclip.Polygon {
	acc := polyclip.Polygon{toContour(rings[0])}
	for _, r := range rings[1:] {
		acc = acc.Construct(polyclip.UNION, polyclip.Polygon{toContour(r)})
	}
	return acc
}

// toContour drops the closing coordinate; polyclip contours are implicitly closed.
func toContour(r orb.Ring) polyclip.Contour {
	c := make(polyclip.Contour, 0, len(r))
	for _, p := range r[:len(r)-1] {
		c = append(c, polyclip.Point{X: p[0], Y: p[1]})
	}
	return c
}

func toRing(c polyclip.Contour) orb.Ring {
	r := make(orb.Ring, 0, len(c)+1)
	for _, p := range c {
		r = append(r, orb.Point{p.X, p.Y})
	}
	return append(r, r[0])
}

// fromContours rebuilds shells and holes from a clipper result. A contour
// nested inside an even number of other contours is a shell; inside an
// odd number it is a hole of the smallest shell containing it.
func fromContours(p polyclip.Polygon) orb.MultiPolygon {
	type contour struct {
		ring  orb.Ring
		area  float64
		depth int
		shell int
	}
	var cs []contour
	for _, c := range p {
		if len(c) < 3 {
			continue
		}
		r := toRing(c)
		cs = append(cs, contour{ring: r, area: math.Abs(planar.Area(r)), shell: -1})
	}
	if len(cs) == 0 {
		return nil
	}
	// Larger contours first so containers precede what they contain.
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].area > cs[j].area })

	for i := range cs {
		probe := cs[i].ring[0]
		for j := 0; j < i; j++ {
			if planar.RingContains(cs[j].ring, probe) {
				cs[i].depth++
				if cs[j].depth%2 == 0 {
					cs[i].shell = j // last match is the smallest container
				}
			}
		}
	}

	var mp orb.MultiPolygon
	index := make(map[int]int)
	for i, c := range cs {
		if c.depth%2 == 0 {
			index[i] = len(mp)
			mp = append(mp, orb.Polygon{c.ring})
		}
	}
	for _, c := range cs {
		if c.depth%2 == 1 && c.shell >= 0 {
			k := index[c.shell]
			mp[k] = append(mp[k], c.ring)
		}
	}
	return mp
}
