package assemble

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/qedus/osmpbf/OSMPBF"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/osmgeo/internal/geometry"
	"github.com/beetlebugorg/osmgeo/internal/pbf"
	"github.com/beetlebugorg/osmgeo/internal/pbf/pbftest"
	"github.com/beetlebugorg/osmgeo/internal/source"
	"github.com/beetlebugorg/osmgeo/internal/style"
)

type fixture struct {
	asm      *Assembler
	store    *pbf.Store
	resolver *pbf.Resolver
}

func newFixture(t *testing.T, b *pbftest.Builder, cfg Config) *fixture {
	t.Helper()
	src := source.NewMemory("test", b.MustBytes())
	idx, _, err := pbf.BuildIndex(context.Background(), src, pbf.IndexOptions{})
	require.NoError(t, err)

	cfg.Store = pbf.NewStore(src, idx.Blocks, nil)
	cfg.Resolver = pbf.NewResolver(idx)
	return &fixture{asm: New(cfg), store: cfg.Store, resolver: cfg.Resolver}
}

func (f *fixture) way(t *testing.T, id int64) (*pbf.RawBlock, *OSMPBF.Way) {
	t.Helper()
	e, _, err := f.resolver.Find(id, pbf.Way, -1)
	require.NoError(t, err)
	blk, err := f.store.Get(context.Background(), e.Block)
	require.NoError(t, err)
	w, ok := blk.FindWay(e.Group, id)
	require.True(t, ok)
	return blk, w
}

func (f *fixture) relation(t *testing.T, id int64) (*pbf.RawBlock, *OSMPBF.Relation) {
	t.Helper()
	e, _, err := f.resolver.Find(id, pbf.Relation, -1)
	require.NoError(t, err)
	blk, err := f.store.Get(context.Background(), e.Block)
	require.NoError(t, err)
	r, ok := blk.FindRelation(e.Group, id)
	require.True(t, ok)
	return blk, r
}

func assertCoords(t *testing.T, want, got orb.LineString) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i][0], got[i][0], 1e-7, "lon %d", i)
		assert.InDelta(t, want[i][1], got[i][1], 1e-7, "lat %d", i)
	}
}

func TestBuildWayResolvesNodes(t *testing.T) {
	b := pbftest.New().
		DenseNodes([]pbftest.Node{{ID: 10, Lat: 0, Lon: 0}, {ID: 20, Lat: 0, Lon: 1}, {ID: 30, Lat: 1, Lon: 1}}).
		Ways([]pbftest.Way{{ID: 100, Refs: []int64{10, 20, 30, 10}, Tags: map[string]string{"building": "yes"}}})
	f := newFixture(t, b, Config{})

	blk, w := f.way(t, 100)
	e, err := f.asm.BuildWay(context.Background(), blk, w)
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, pbf.Way, e.Kind)
	assert.Equal(t, int64(100), e.ID)
	assert.Equal(t, map[string]string{"building": "yes"}, e.Tags)
	require.Len(t, e.Outer, 1)
	assertCoords(t, orb.LineString{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, e.Outer[0])

	g, err := Geometry(e, geometry.ShellsCCW)
	require.NoError(t, err)
	assert.IsType(t, orb.Polygon{}, g)
}

func TestBuildWayNodesAcrossBlocks(t *testing.T) {
	b := pbftest.New().
		DenseNodes([]pbftest.Node{{ID: 1, Lat: 1, Lon: 1}, {ID: 2, Lat: 2, Lon: 2}, {ID: 3, Lat: 3, Lon: 3}}).
		DenseNodes([]pbftest.Node{{ID: 4, Lat: 4, Lon: 4}, {ID: 5, Lat: 5, Lon: 5}}).
		Ways([]pbftest.Way{{ID: 7, Refs: []int64{1, 4, 2, 5, 3}, Tags: map[string]string{"highway": "path"}}})
	f := newFixture(t, b, Config{})

	blk, w := f.way(t, 7)
	e, err := f.asm.BuildWay(context.Background(), blk, w)
	require.NoError(t, err)
	require.NotNil(t, e)
	assertCoords(t, orb.LineString{{1, 1}, {4, 4}, {2, 2}, {5, 5}, {3, 3}}, e.Outer[0])

	g, err := Geometry(e, geometry.ShellsCCW)
	require.NoError(t, err)
	assert.IsType(t, orb.LineString{}, g)
}

func TestBuildWayDanglingReference(t *testing.T) {
	b := pbftest.New().
		DenseNodes([]pbftest.Node{{ID: 1}, {ID: 5}}).
		Ways([]pbftest.Way{{ID: 9, Refs: []int64{1, 3, 5}, Tags: map[string]string{"highway": "path"}}})
	f := newFixture(t, b, Config{})

	blk, w := f.way(t, 9)
	e, err := f.asm.BuildWay(context.Background(), blk, w)
	require.Error(t, err)
	assert.Nil(t, e)

	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling))
	assert.Equal(t, pbf.Way, dangling.Kind)
	assert.Equal(t, int64(9), dangling.ID)
	assert.Equal(t, pbf.Node, dangling.Ref)
	assert.Equal(t, int64(3), dangling.RefID)
	assert.ErrorIs(t, err, pbf.ErrEntityNotFound)
	assert.True(t, IsRecoverable(err))
}

func TestBuildWayMatcherAndFilter(t *testing.T) {
	b := pbftest.New().
		DenseNodes([]pbftest.Node{{ID: 1, Lat: 1, Lon: 1}, {ID: 2, Lat: 2, Lon: 2}}).
		Ways([]pbftest.Way{
			{ID: 1, Refs: []int64{1, 2}, Tags: map[string]string{"highway": "path"}},
			{ID: 2, Refs: []int64{1, 2}, Tags: map[string]string{"building": "yes"}},
		})

	t.Run("matcher", func(t *testing.T) {
		only := func(tags style.Tags) bool { return style.Match(style.Any("building"), tags) }
		f := newFixture(t, b, Config{Matcher: style.NewMatcher(only)})

		blk, w := f.way(t, 1)
		e, err := f.asm.BuildWay(context.Background(), blk, w)
		require.NoError(t, err)
		assert.Nil(t, e)

		blk, w = f.way(t, 2)
		e, err = f.asm.BuildWay(context.Background(), blk, w)
		require.NoError(t, err)
		assert.NotNil(t, e)
	})

	t.Run("filter", func(t *testing.T) {
		far := orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{60, 60}}
		f := newFixture(t, b, Config{Filter: geometry.NewFilter(far)})

		blk, w := f.way(t, 1)
		e, err := f.asm.BuildWay(context.Background(), blk, w)
		require.NoError(t, err)
		assert.Nil(t, e)

		near := orb.Bound{Min: orb.Point{1.5, 1.5}, Max: orb.Point{3, 3}}
		f.asm.SetFilter(geometry.NewFilter(near))
		e, err = f.asm.BuildWay(context.Background(), blk, w)
		require.NoError(t, err)
		assert.NotNil(t, e)
	})
}

func TestBuildNodes(t *testing.T) {
	b := pbftest.New().DenseNodes(
		[]pbftest.Node{
			{ID: 1, Lat: 1, Lon: 2},
			{ID: 2, Lat: 3, Lon: 4, Tags: map[string]string{"amenity": "cafe"}},
		},
		[]pbftest.Node{
			{ID: 3, Lat: 5, Lon: 6, Tags: map[string]string{"shop": "bakery"}},
		},
	)
	f := newFixture(t, b, Config{})
	blk, err := f.store.Get(context.Background(), 1)
	require.NoError(t, err)

	got, last, err := f.asm.BuildNodes(context.Background(), blk, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, last)
	require.Len(t, got, 2)

	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, map[string]string{"amenity": "cafe"}, got[0].Tags)
	assert.Equal(t, int64(3), got[1].ID)

	g, err := Geometry(got[0], nil)
	require.NoError(t, err)
	p, ok := g.(orb.Point)
	require.True(t, ok)
	assert.InDelta(t, 4, p.Lon(), 1e-7)
	assert.InDelta(t, 3, p.Lat(), 1e-7)
}

func TestBuildNodesStyleSkipsGroup(t *testing.T) {
	b := pbftest.New().DenseNodes(
		[]pbftest.Node{{ID: 1, Tags: map[string]string{"amenity": "cafe"}}},
		[]pbftest.Node{{ID: 2, Tags: map[string]string{"shop": "bakery"}}},
	)
	shops := func(tags style.Tags) bool { return style.Match(style.Any("shop"), tags) }
	f := newFixture(t, b, Config{Matcher: style.NewMatcher(shops)})
	blk, err := f.store.Get(context.Background(), 1)
	require.NoError(t, err)

	got, _, err := f.asm.BuildNodes(context.Background(), blk, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

// lake is a 10x10 square with a 2x2 island. The outer ring is split over
// two ways, one of them stored reversed.
func lake() *pbftest.Builder {
	return pbftest.New().
		DenseNodes([]pbftest.Node{
			{ID: 1, Lat: 0, Lon: 0}, {ID: 2, Lat: 0, Lon: 10}, {ID: 3, Lat: 10, Lon: 10}, {ID: 4, Lat: 10, Lon: 0},
			{ID: 5, Lat: 4, Lon: 4}, {ID: 6, Lat: 4, Lon: 6}, {ID: 7, Lat: 6, Lon: 6}, {ID: 8, Lat: 6, Lon: 4},
		}).
		Ways([]pbftest.Way{
			{ID: 11, Refs: []int64{1, 2, 3}},
			{ID: 12, Refs: []int64{1, 4, 3}},
			{ID: 13, Refs: []int64{5, 6, 7, 8, 5}},
		}).
		Relations([]pbftest.Relation{
			{
				ID: 100,
				Members: []pbftest.Member{
					{Type: "way", ID: 11, Role: "outer"},
					{Type: "node", ID: 1, Role: "label"},
					{Type: "way", ID: 13, Role: "inner"},
					{Type: "way", ID: 12, Role: "outer"},
				},
				Tags: map[string]string{"type": "multipolygon", "natural": "water"},
			},
			{
				ID:      101,
				Members: []pbftest.Member{{Type: "node", ID: 1, Role: "admin_centre"}, {Type: "way", ID: 11}},
				Tags:    map[string]string{"type": "boundary"},
			},
			{
				ID:      102,
				Members: []pbftest.Member{{Type: "way", ID: 99, Role: "outer"}},
				Tags:    map[string]string{"type": "multipolygon"},
			},
		})
}

func TestBuildRelation(t *testing.T) {
	f := newFixture(t, lake(), Config{})

	blk, r := f.relation(t, 100)
	e, err := f.asm.BuildRelation(context.Background(), blk, r)
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, pbf.Relation, e.Kind)
	assert.Equal(t, map[string]string{"type": "multipolygon", "natural": "water"}, e.Tags)
	require.Len(t, e.Outer, 2)
	require.Len(t, e.Inner, 1)
	assertCoords(t, orb.LineString{{0, 0}, {10, 0}, {10, 10}}, e.Outer[0])
	assertCoords(t, orb.LineString{{0, 0}, {0, 10}, {10, 10}}, e.Outer[1])

	g, err := Geometry(e, geometry.ShellsCCW)
	require.NoError(t, err)
	poly, ok := g.(orb.Polygon)
	require.True(t, ok, "got %T", g)
	assert.Len(t, poly, 2)
	assert.Equal(t, orb.CCW, poly[0].Orientation())
	assert.Equal(t, orb.CW, poly[1].Orientation())
}

func TestBuildRelationFailures(t *testing.T) {
	f := newFixture(t, lake(), Config{})

	blk, r := f.relation(t, 101)
	_, err := f.asm.BuildRelation(context.Background(), blk, r)
	assert.ErrorIs(t, err, ErrNoMembers)
	assert.True(t, IsRecoverable(err))

	blk, r = f.relation(t, 102)
	_, err = f.asm.BuildRelation(context.Background(), blk, r)
	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling))
	assert.Equal(t, pbf.Way, dangling.Ref)
	assert.Equal(t, int64(99), dangling.RefID)
}

func TestRelationGeometry(t *testing.T) {
	f := newFixture(t, lake(), Config{})

	g, err := f.asm.RelationGeometry(context.Background(), 100)
	require.NoError(t, err)
	bound := g.Bound()
	assert.InDelta(t, 0, bound.Min.Lon(), 1e-7)
	assert.InDelta(t, 0, bound.Min.Lat(), 1e-7)
	assert.InDelta(t, 10, bound.Max.Lon(), 1e-7)
	assert.InDelta(t, 10, bound.Max.Lat(), 1e-7)

	_, err = f.asm.RelationGeometry(context.Background(), 555)
	assert.ErrorIs(t, err, pbf.ErrEntityNotFound)
}

func TestGeometryClosedWays(t *testing.T) {
	ring := orb.LineString{{0, 0}, {1, 0}, {1, 1}, {0, 0}}
	tests := []struct {
		name string
		tags map[string]string
		want orb.Geometry
	}{
		{"building", map[string]string{"building": "yes"}, orb.Polygon{}},
		{"roundabout", map[string]string{"highway": "primary"}, orb.LineString{}},
		{"pedestrian area", map[string]string{"highway": "pedestrian", "area": "yes"}, orb.Polygon{}},
		{"area no", map[string]string{"landuse": "grass", "area": "no"}, orb.LineString{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entity{Kind: pbf.Way, ID: 1, Outer: []orb.LineString{ring}, Tags: tt.tags}
			g, err := Geometry(e, geometry.ShellsCW)
			require.NoError(t, err)
			assert.IsType(t, tt.want, g)
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(geometry.ErrUnclosedRing))
	assert.True(t, IsRecoverable(&geometry.InvalidCoordinateError{Lon: 200}))
	assert.False(t, IsRecoverable(context.Canceled))
	assert.False(t, IsRecoverable(&pbf.CorruptBlockError{BlockID: 3}))
}
