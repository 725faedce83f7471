package pbf

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/osmgeo/internal/pbf/pbftest"
)

func TestNodeGroupDecode(t *testing.T) {
	_, store := openStore(t, pbftest.New().DenseNodes([]pbftest.Node{
		{ID: 10, Lat: 1.0, Lon: 2.0},
		{ID: 20, Lat: 1.5, Lon: 2.5, Tags: map[string]string{"amenity": "cafe", "name": "Corner"}},
		{ID: 30, Lat: -2.25, Lon: -3.125},
	}))
	blk, err := store.Get(context.Background(), 1)
	require.NoError(t, err)

	kind, ok := blk.GroupKind(0)
	require.True(t, ok)
	assert.Equal(t, Node, kind)

	ng := blk.NodeGroup(0)
	require.NotNil(t, ng)
	require.Equal(t, 3, ng.Len())
	assert.Same(t, ng, blk.NodeGroup(0))

	i, ok := ng.Find(30)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-3.125, -2.25}, ng.Coord(i))
	assert.Equal(t, 0, ng.Tags(i).Len())

	i, ok = ng.Find(20)
	require.True(t, ok)
	v, ok := ng.Tags(i).Lookup("amenity")
	assert.True(t, ok)
	assert.Equal(t, "cafe", v)
	assert.Equal(t, map[string]string{"amenity": "cafe", "name": "Corner"}, ng.Tags(i).Map())

	_, ok = ng.Find(25)
	assert.False(t, ok)
}

func TestEachNodeTagsStops(t *testing.T) {
	_, store := openStore(t, pbftest.New().DenseNodes([]pbftest.Node{
		{ID: 1, Tags: map[string]string{"a": "1"}},
		{ID: 2},
		{ID: 3, Tags: map[string]string{"b": "2"}},
	}))
	blk, err := store.Get(context.Background(), 1)
	require.NoError(t, err)

	var seen []int
	blk.EachNodeTags(0, func(n int, tags Tags) bool {
		seen = append(seen, tags.Len())
		return n < 1
	})
	assert.Equal(t, []int{1, 0}, seen)
}

func TestPlainNodes(t *testing.T) {
	_, store := openStore(t, pbftest.New().PlainNodes(
		pbftest.Node{ID: 7, Lat: 50, Lon: 8, Tags: map[string]string{"place": "city"}},
		pbftest.Node{ID: 3, Lat: 51, Lon: 9},
	))
	blk, err := store.Get(context.Background(), 1)
	require.NoError(t, err)

	ng := blk.NodeGroup(0)
	require.NotNil(t, ng)
	i, ok := ng.Find(3)
	require.True(t, ok)
	assert.Equal(t, orb.Point{9, 51}, ng.Coord(i))

	i, ok = ng.Find(7)
	require.True(t, ok)
	assert.Equal(t, "city", ng.Tags(i).Map()["place"])
}

func TestWayAndRelationDecode(t *testing.T) {
	_, store := openStore(t, pbftest.New().
		Ways([]pbftest.Way{
			{ID: 9, Refs: []int64{5, 3, 8}},
			{ID: 4, Refs: []int64{1, 2}, Tags: map[string]string{"highway": "path"}},
		}).
		Relations([]pbftest.Relation{{
			ID: 77,
			Members: []pbftest.Member{
				{Type: "way", ID: 9, Role: "outer"},
				{Type: "node", ID: 3, Role: "label"},
				{Type: "relation", ID: 1, Role: ""},
			},
			Tags: map[string]string{"type": "multipolygon"},
		}}))
	ctx := context.Background()

	wb, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, wb.NodeGroup(0))

	w, ok := wb.FindWay(0, 9)
	require.True(t, ok)
	assert.Equal(t, []int64{5, 3, 8}, WayRefs(w))

	w, ok = wb.FindWay(0, 4)
	require.True(t, ok)
	assert.Equal(t, "path", wb.WayTags(w).Map()["highway"])

	_, ok = wb.FindWay(0, 5)
	assert.False(t, ok)

	rb, err := store.Get(ctx, 2)
	require.NoError(t, err)
	r, ok := rb.FindRelation(0, 77)
	require.True(t, ok)
	assert.Equal(t, []Member{
		{ID: 9, Kind: Way, Role: "outer"},
		{ID: 3, Kind: Node, Role: "label"},
		{ID: 1, Kind: Relation, Role: ""},
	}, rb.Members(r))
	v, _ := rb.RelationTags(r).Lookup("type")
	assert.Equal(t, "multipolygon", v)
}

func TestIDIndexUnsorted(t *testing.T) {
	x := newIDIndex([]int64{40, 10, 30, 20})
	for want, id := range []int64{40, 10, 30, 20} {
		got, ok := x.find(id)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := x.find(25)
	assert.False(t, ok)
}
