package pbf

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/osmgeo/internal/pbf/pbftest"
	"github.com/beetlebugorg/osmgeo/internal/source"
)

func scenarioFile(t *testing.T) *source.Memory {
	t.Helper()
	data, err := pbftest.New().
		DenseNodes([]pbftest.Node{
			{ID: 10, Lat: 1.0, Lon: 2.0},
			{ID: 20, Lat: 1.5, Lon: 2.5, Tags: map[string]string{"amenity": "cafe"}},
			{ID: 30, Lat: 2.0, Lon: 3.0},
		}).
		Ways([]pbftest.Way{
			{ID: 100, Refs: []int64{10, 20, 30}, Tags: map[string]string{"building": "yes"}},
		}).
		Bytes()
	require.NoError(t, err)
	return source.NewMemory("scenario.osm.pbf", data)
}

func TestBuildIndexScenario(t *testing.T) {
	src := scenarioFile(t)

	idx, header, err := BuildIndex(context.Background(), src, IndexOptions{Workers: 2})
	require.NoError(t, err)

	require.Len(t, idx.Blocks, 3)
	assert.Equal(t, int64(0), idx.Blocks[0].Offset)
	assert.Equal(t, idx.Blocks[0].Size, idx.Blocks[1].Offset)
	assert.Equal(t, src.Size(), idx.Blocks[2].Offset+idx.Blocks[2].Size)

	assert.Equal(t, []IndexEntry{{Block: 1, Group: 0, Kind: Node, MinID: 10, MaxID: 30}}, idx.Nodes)
	assert.Equal(t, []IndexEntry{{Block: 2, Group: 0, Kind: Way, MinID: 100, MaxID: 100}}, idx.Ways)
	assert.Empty(t, idx.Relations)

	assert.Equal(t, "pbftest", header.WritingProgram)
	assert.True(t, header.HasBounds)
	assert.Equal(t, -180.0, header.Bounds.Min[0])
}

func TestBuildIndexEntriesInFileOrder(t *testing.T) {
	data := pbftest.New().
		Uncompressed().
		DenseNodes(
			[]pbftest.Node{{ID: 1}, {ID: 5}},
			[]pbftest.Node{{ID: 6}, {ID: 9}},
		).
		DenseNodes([]pbftest.Node{{ID: 12}, {ID: 11}}).
		Ways([]pbftest.Way{{ID: 7, Refs: []int64{1}}}, []pbftest.Way{{ID: 3, Refs: []int64{1}}}).
		Relations([]pbftest.Relation{{ID: 50}, {ID: 40}}).
		MustBytes()

	idx, _, err := BuildIndex(context.Background(), source.NewMemory("x", data), IndexOptions{})
	require.NoError(t, err)

	var order [][2]int
	for _, e := range idx.Entries() {
		order = append(order, [2]int{e.Block, e.Group})
	}
	assert.Equal(t, [][2]int{{1, 0}, {1, 1}, {2, 0}, {3, 0}, {3, 1}, {4, 0}}, order)

	// Per-kind lists are ordered by MinID, not by position.
	assert.Equal(t, int64(3), idx.Ways[0].MinID)
	assert.Equal(t, 3, idx.Ways[0].Block)
	assert.Equal(t, 1, idx.Ways[0].Group)

	// Unsorted ids inside a group still give the true range.
	assert.Equal(t, IndexEntry{Block: 2, Group: 0, Kind: Node, MinID: 11, MaxID: 12}, idx.Nodes[2])
	assert.Equal(t, IndexEntry{Block: 4, Group: 0, Kind: Relation, MinID: 40, MaxID: 50}, idx.Relations[0])
}

func TestBuildIndexTruncated(t *testing.T) {
	data := pbftest.New().DenseNodes([]pbftest.Node{{ID: 1}}).MustBytes()

	_, _, err := BuildIndex(context.Background(), source.NewMemory("x", data[:len(data)-3]), IndexOptions{})
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = BuildIndex(context.Background(), source.NewMemory("x", append(data, 0, 0)), IndexOptions{})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestBuildIndexCorruptPayload(t *testing.T) {
	good := pbftest.New().MustBytes()
	bad, err := pbftest.Frame("OSMData", []byte{0xff, 0xff, 0xff}, true)
	require.NoError(t, err)

	_, _, err = BuildIndex(context.Background(), source.NewMemory("x", append(good, bad...)), IndexOptions{})
	var corrupt *CorruptBlockError
	require.True(t, errors.As(err, &corrupt), "got %v", err)
	assert.Equal(t, 1, corrupt.BlockID)
}

func TestBuildIndexUnsupportedFeature(t *testing.T) {
	data := pbftest.New().RequireFeatures("OsmSchema-V0.6", "HistoricalInformation").MustBytes()

	_, _, err := BuildIndex(context.Background(), source.NewMemory("x", data), IndexOptions{})
	var unsupported *UnsupportedFeatureError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "HistoricalInformation", unsupported.Feature)
}

func TestBuildIndexEmpty(t *testing.T) {
	_, _, err := BuildIndex(context.Background(), source.NewMemory("x", nil), IndexOptions{})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestNewIndexRejectsOverlap(t *testing.T) {
	blocks := []BlockInfo{{ID: 0}, {ID: 1}, {ID: 2}}
	_, err := NewIndex(blocks, []IndexEntry{
		{Block: 1, Group: 0, Kind: Way, MinID: 1, MaxID: 10},
		{Block: 2, Group: 0, Kind: Way, MinID: 10, MaxID: 20},
	})
	var overlap *OverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, int64(10), overlap.Second.MinID)

	// Gaps are fine, and different kinds may share ids.
	_, err = NewIndex(blocks, []IndexEntry{
		{Block: 1, Group: 0, Kind: Way, MinID: 1, MaxID: 10},
		{Block: 2, Group: 0, Kind: Way, MinID: 15, MaxID: 20},
		{Block: 2, Group: 1, Kind: Relation, MinID: 1, MaxID: 20},
	})
	assert.NoError(t, err)
}
