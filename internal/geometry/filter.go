package geometry

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const rectEpsilon = 1e-9

// Filter restricts materialization to coordinates inside one or more
// regions. Regions are held in an R-tree so that many small regions stay
// cheap to query. A nil *Filter accepts everything.
type Filter struct {
	tree    *rtreego.Rtree
	regions []*region
	bound   orb.Bound
}

type region struct {
	geom  orb.Geometry
	bound orb.Bound
}

// Bounds implements rtreego.Spatial.
func (r *region) Bounds() rtreego.Rect {
	return boundRect(r.bound)
}

func boundRect(b orb.Bound) rtreego.Rect {
	point := rtreego.Point{b.Min[0] - rectEpsilon, b.Min[1] - rectEpsilon}
	lengths := []float64{
		b.Max[0] - b.Min[0] + 2*rectEpsilon,
		b.Max[1] - b.Min[1] + 2*rectEpsilon,
	}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

// NewFilter builds a filter over geoms. Supported regions are orb.Bound,
// orb.Ring, orb.Polygon and orb.MultiPolygon; any other geometry filters by
// its bounding box. With no usable geometry NewFilter returns nil.
func NewFilter(geoms ...orb.Geometry) *Filter {
	f := &Filter{tree: rtreego.NewTree(2, 25, 50)}
	for _, g := range geoms {
		if g == nil {
			continue
		}
		r := &region{geom: g, bound: g.Bound()}
		if len(f.regions) == 0 {
			f.bound = r.bound
		} else {
			f.bound = f.bound.Union(r.bound)
		}
		f.regions = append(f.regions, r)
		f.tree.Insert(r)
	}
	if len(f.regions) == 0 {
		return nil
	}
	return f
}

// Bound returns the envelope of every region.
func (f *Filter) Bound() orb.Bound {
	if f == nil {
		return orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	}
	return f.bound
}

// Contains reports whether p lies inside any region.
func (f *Filter) Contains(p orb.Point) bool {
	if f == nil {
		return true
	}
	if !f.bound.Contains(p) {
		return false
	}
	for _, s := range f.tree.SearchIntersect(boundRect(orb.Bound{Min: p, Max: p})) {
		if contains(s.(*region).geom, p) {
			return true
		}
	}
	return false
}

// AnyInside reports whether at least one point lies inside the filter.
func (f *Filter) AnyInside(points []orb.Point) bool {
	if f == nil {
		return true
	}
	for _, p := range points {
		if f.Contains(p) {
			return true
		}
	}
	return false
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Bound:
		return g.Contains(p)
	case orb.Ring:
		return planar.RingContains(g, p)
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	}
	return g.Bound().Contains(p)
}
