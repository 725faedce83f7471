// Package assemble resolves OSM ways and relations into entities carrying
// coordinates instead of references.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/qedus/osmpbf/OSMPBF"

	"github.com/beetlebugorg/osmgeo/internal/geometry"
	"github.com/beetlebugorg/osmgeo/internal/pbf"
	"github.com/beetlebugorg/osmgeo/internal/style"
)

// Entity is a resolved OSM object. Outer holds one sequence for nodes and
// ways; for relations Outer and Inner hold one sequence per member way.
type Entity struct {
	Kind  pbf.EntityKind
	ID    int64
	Outer []orb.LineString
	Inner []orb.LineString
	Tags  map[string]string
}

// Points returns every coordinate of the entity.
func (e *Entity) Points() []orb.Point {
	var pts []orb.Point
	for _, s := range e.Outer {
		pts = append(pts, s...)
	}
	for _, s := range e.Inner {
		pts = append(pts, s...)
	}
	return pts
}

// Config wires an Assembler.
type Config struct {
	Store    *pbf.Store
	Resolver *pbf.Resolver
	Matcher  *style.Matcher
	Filter   *geometry.Filter // nil accepts everything
	Logger   *slog.Logger
}

// Assembler builds entities from raw blocks. It is safe for concurrent use.
type Assembler struct {
	store    *pbf.Store
	resolver *pbf.Resolver
	matcher  *style.Matcher
	filter   *geometry.Filter
	log      *slog.Logger
}

// New creates an assembler.
func New(cfg Config) *Assembler {
	if cfg.Matcher == nil {
		cfg.Matcher = style.NewMatcher(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		matcher:  cfg.Matcher,
		filter:   cfg.Filter,
		log:      cfg.Logger,
	}
}

// SetFilter replaces the bounding filter. Not safe while builds are running.
func (a *Assembler) SetFilter(f *geometry.Filter) {
	a.filter = f
}

// Matcher returns the tag matcher.
func (a *Assembler) Matcher() *style.Matcher {
	return a.matcher
}

// BuildNodes materializes every matching tagged node in the run of node
// groups starting at group first, and returns the index of the last group
// of that run. Node groups are handled a whole block at a time; a run ends
// only where a block mixes entity kinds.
func (a *Assembler) BuildNodes(ctx context.Context, blk *pbf.RawBlock, first int) ([]*Entity, int, error) {
	var out []*Entity
	last := first
	for gi := first; gi < len(blk.Groups); gi++ {
		if kind, ok := blk.GroupKind(gi); ok && kind != pbf.Node {
			break
		}
		last = gi
		if err := ctx.Err(); err != nil {
			return nil, last, err
		}
		if a.matcher.CanSkipGroup(pbf.Node, blk, gi) {
			continue
		}
		ng := blk.NodeGroup(gi)
		if ng == nil {
			continue
		}
		for i := 0; i < ng.Len(); i++ {
			tags := ng.Tags(i)
			if !a.matcher.MatchesNode(tags) {
				continue
			}
			p := ng.Coord(i)
			if !geometry.ValidCoordinate(p) {
				a.log.DebugContext(ctx, "dropping node", "id", ng.ID(i), "error", &geometry.InvalidCoordinateError{Lon: p[0], Lat: p[1]})
				continue
			}
			if !a.filter.Contains(p) {
				continue
			}
			out = append(out, &Entity{
				Kind:  pbf.Node,
				ID:    ng.ID(i),
				Outer: []orb.LineString{{p}},
				Tags:  tags.Map(),
			})
		}
	}
	return out, last, nil
}

// BuildWay resolves a way's node references to coordinates. It returns nil
// without error when the tag matcher rejects the way or when no coordinate
// lies inside the bounding filter.
func (a *Assembler) BuildWay(ctx context.Context, blk *pbf.RawBlock, w *OSMPBF.Way) (*Entity, error) {
	tags := blk.WayTags(w)
	if !a.matcher.Matches(tags) {
		return nil, nil
	}
	coords, err := a.wayCoords(ctx, w)
	if err != nil {
		return nil, a.dangling(err, pbf.Way, w.GetId())
	}
	if !a.filter.AnyInside(coords) {
		return nil, nil
	}
	return &Entity{
		Kind:  pbf.Way,
		ID:    w.GetId(),
		Outer: []orb.LineString{coords},
		Tags:  tags.Map(),
	}, nil
}

// BuildRelation resolves the inner and outer way members of a relation.
// Node and sub-relation members are ignored, and member ways contribute
// only coordinates; the relation's own tags describe the entity.
//
// It returns ErrNoMembers when no inner or outer way member exists, and
// nil without error when the tag matcher rejects the relation or when no
// member coordinate lies inside the bounding filter.
func (a *Assembler) BuildRelation(ctx context.Context, blk *pbf.RawBlock, r *OSMPBF.Relation) (*Entity, error) {
	members := usableMembers(blk.Members(r))
	if len(members) == 0 {
		return nil, fmt.Errorf("relation %d: %w", r.GetId(), ErrNoMembers)
	}
	tags := blk.RelationTags(r)
	if !a.matcher.Matches(tags) {
		return nil, nil
	}

	e, err := a.resolveMembers(ctx, r.GetId(), members)
	if err != nil {
		return nil, err
	}
	if !a.filter.AnyInside(e.Points()) {
		return nil, nil
	}
	e.Tags = tags.Map()
	return e, nil
}

// RelationGeometry resolves relation id without consulting the matcher or
// the filter and returns its area, or the envelope of its members when the
// rings do not assemble. Used to derive a working envelope before a pass.
func (a *Assembler) RelationGeometry(ctx context.Context, id int64) (orb.Geometry, error) {
	entry, _, err := a.resolver.Find(id, pbf.Relation, -1)
	if err != nil {
		return nil, err
	}
	blk, err := a.store.Get(ctx, entry.Block)
	if err != nil {
		return nil, err
	}
	r, ok := blk.FindRelation(entry.Group, id)
	if !ok {
		return nil, fmt.Errorf("relation %d: %w", id, pbf.ErrEntityNotFound)
	}
	members := usableMembers(blk.Members(r))
	if len(members) == 0 {
		return nil, fmt.Errorf("relation %d: %w", id, ErrNoMembers)
	}
	e, err := a.resolveMembers(ctx, id, members)
	if err != nil {
		return nil, err
	}

	g, err := geometry.BuildGeometry(e.Outer, e.Inner)
	if err != nil {
		a.log.WarnContext(ctx, "target relation rings did not assemble, using member envelope", "relation", id, "error", err)
		return orb.MultiPoint(e.Points()).Bound(), nil
	}
	return g, nil
}

func usableMembers(all []pbf.Member) []pbf.Member {
	var out []pbf.Member
	for _, m := range all {
		if m.Kind == pbf.Way && (m.Role == "outer" || m.Role == "inner") {
			out = append(out, m)
		}
	}
	return out
}

func (a *Assembler) resolveMembers(ctx context.Context, relID int64, members []pbf.Member) (*Entity, error) {
	e := &Entity{Kind: pbf.Relation, ID: relID}
	hint := -1
	for _, m := range members {
		entry, pos, err := a.resolver.Find(m.ID, pbf.Way, hint)
		if err != nil {
			if errors.Is(err, pbf.ErrEntityNotFound) {
				return nil, &DanglingReferenceError{Kind: pbf.Relation, ID: relID, Ref: pbf.Way, RefID: m.ID}
			}
			return nil, err
		}
		hint = pos

		blk, err := a.store.Get(ctx, entry.Block)
		if err != nil {
			return nil, err
		}
		w, ok := blk.FindWay(entry.Group, m.ID)
		if !ok {
			return nil, &DanglingReferenceError{Kind: pbf.Relation, ID: relID, Ref: pbf.Way, RefID: m.ID}
		}
		coords, err := a.wayCoords(ctx, w)
		if err != nil {
			return nil, a.dangling(err, pbf.Relation, relID)
		}

		if m.Role == "inner" {
			e.Inner = append(e.Inner, coords)
		} else {
			e.Outer = append(e.Outer, coords)
		}
	}
	return e, nil
}

// dangling attributes a missing-reference error to the entity being built.
func (a *Assembler) dangling(err error, kind pbf.EntityKind, id int64) error {
	if ref, ok := err.(*missingRef); ok {
		return &DanglingReferenceError{Kind: kind, ID: id, Ref: ref.kind, RefID: ref.id}
	}
	return err
}

type missingRef struct {
	kind pbf.EntityKind
	id   int64
}

func (m *missingRef) Error() string {
	return fmt.Sprintf("missing %s %d", m.kind, m.id)
}

func (m *missingRef) Unwrap() error { return pbf.ErrEntityNotFound }
