package assemble

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/osmgeo/internal/geometry"
	"github.com/beetlebugorg/osmgeo/internal/pbf"
)

// linearKeys mark closed ways that are lines unless tagged area=yes.
var linearKeys = []string{"highway", "barrier", "railway", "waterway"}

// Geometry converts an entity to its output geometry: a point for nodes, a
// line or polygon for ways, and a polygon or multipolygon for relations.
// Areas are wound by o; a nil o leaves windings as assembled.
func Geometry(e *Entity, o geometry.Orienter) (orb.Geometry, error) {
	var (
		g   orb.Geometry
		err error
	)
	switch e.Kind {
	case pbf.Node:
		if len(e.Outer) == 0 || len(e.Outer[0]) == 0 {
			return nil, geometry.ErrEmptyGeometry
		}
		return e.Outer[0][0], nil

	case pbf.Way:
		if len(e.Outer) == 0 || len(e.Outer[0]) < 2 {
			return nil, geometry.ErrEmptyGeometry
		}
		ls := e.Outer[0]
		if !isArea(ls, e.Tags) {
			return ls, nil
		}
		g, err = geometry.BuildGeometry(e.Outer, nil)

	case pbf.Relation:
		g, err = geometry.BuildGeometry(e.Outer, e.Inner)

	default:
		return nil, fmt.Errorf("assemble: unknown entity kind %d", e.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %d: %w", e.Kind, e.ID, err)
	}
	if o == nil {
		return g, nil
	}
	g, err = o.Orient(g)
	if err != nil {
		return nil, fmt.Errorf("%s %d: %w", e.Kind, e.ID, err)
	}
	return g, nil
}

func isArea(ls orb.LineString, tags map[string]string) bool {
	if len(ls) < 4 || ls[0] != ls[len(ls)-1] {
		return false
	}
	switch tags["area"] {
	case "no":
		return false
	case "yes":
		return true
	}
	for _, k := range linearKeys {
		if _, ok := tags[k]; ok {
			return false
		}
	}
	return true
}
