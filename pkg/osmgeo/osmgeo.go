// Package osmgeo converts OpenStreetMap PBF extracts into geometries.
//
// A Converter indexes the input once, then walks every primitive group in
// file order. Nodes become points, ways become lines or polygons, and
// multipolygon relations are assembled from their member ways. Each group's
// entities are committed to a Sink before the progress marker advances, so
// an interrupted run resumes at the first uncommitted group.
//
// Example:
//
//	conv, err := osmgeo.Open(ctx, "monaco-latest.osm.pbf", osmgeo.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conv.Close()
//
//	sink := osmgeo.NewMemorySink()
//	if err := conv.Run(ctx, sink); err != nil {
//	    log.Fatal(err)
//	}
package osmgeo

import (
	"github.com/paulmach/orb"

	"github.com/beetlebugorg/osmgeo/internal/geometry"
	"github.com/beetlebugorg/osmgeo/internal/pbf"
	"github.com/beetlebugorg/osmgeo/internal/style"
)

// Kind is the OSM entity kind: Node, Way or Relation.
type Kind = pbf.EntityKind

const (
	Node     = pbf.Node
	Way      = pbf.Way
	Relation = pbf.Relation
)

// Orientation is the ring winding applied to polygon output.
type Orientation = geometry.Orientation

const (
	// ShellsCCW winds outer rings counter-clockwise (RFC 7946). Default.
	ShellsCCW = geometry.ShellsCCW
	// ShellsCW winds outer rings clockwise.
	ShellsCW = geometry.ShellsCW
)

// StyleRegistry holds named style sets used to select entities by tag.
type StyleRegistry = style.Registry

// LoadStyles reads a YAML style-set file.
func LoadStyles(path string) (*StyleRegistry, error) {
	return style.LoadFile(path)
}

// Entity is one converted OSM object.
type Entity struct {
	Kind Kind
	ID   int64
	Tags map[string]string

	// Geometry is an orb.Point, orb.LineString, orb.Polygon or
	// orb.MultiPolygon.
	Geometry orb.Geometry
}

// GroupRef identifies the primitive groups a commit covers. Way and
// relation commits cover one group (Group == Last); node commits cover the
// run of node groups in a block.
type GroupRef struct {
	Kind  Kind
	Block int
	Group int
	Last  int
}
