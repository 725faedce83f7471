package pbf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/osmgeo/internal/pbf/pbftest"
	"github.com/beetlebugorg/osmgeo/internal/source"
)

func TestSideFilesRoundTrip(t *testing.T) {
	src := scenarioFile(t)
	idx, _, err := BuildIndex(context.Background(), src, IndexOptions{})
	require.NoError(t, err)

	sf := SideFiles{Base: filepath.Join(t.TempDir(), "scenario.osm.pbf")}
	require.NoError(t, sf.SaveIndex(idx))

	indexinfo, err := os.ReadFile(sf.IndexInfoPath())
	require.NoError(t, err)
	assert.Equal(t, "1:0:node:10:30\n2:0:way:100:100\n", string(indexinfo))

	blockinfo, err := os.ReadFile(sf.BlockInfoPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(blockinfo)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "0:0:"))

	loaded, err := sf.LoadIndex()
	require.NoError(t, err)
	assert.Equal(t, idx.Blocks, loaded.Blocks)
	assert.Equal(t, idx.Nodes, loaded.Nodes)
	assert.Equal(t, idx.Ways, loaded.Ways)
	assert.Equal(t, idx.Entries(), loaded.Entries())
}

func TestSideFilesMissing(t *testing.T) {
	sf := SideFiles{Base: filepath.Join(t.TempDir(), "none.pbf")}

	_, err := sf.LoadIndex()
	assert.ErrorIs(t, err, ErrNoSideFiles)
	_, err = sf.LoadProgress()
	assert.ErrorIs(t, err, ErrNoSideFiles)
	assert.False(t, sf.Complete())
	assert.NoError(t, sf.Remove())
}

func TestSideFilesProgress(t *testing.T) {
	sf := SideFiles{Base: filepath.Join(t.TempDir(), "p.pbf")}

	require.NoError(t, sf.SaveProgress(Start))
	m, err := sf.LoadProgress()
	require.NoError(t, err)
	assert.Equal(t, Start, m)

	require.NoError(t, sf.SaveProgress(Marker{Block: 5, Group: 2}))
	raw, err := os.ReadFile(sf.ProgressPath())
	require.NoError(t, err)
	assert.Equal(t, "5:2\n", string(raw))

	m, err = sf.LoadProgress()
	require.NoError(t, err)
	assert.Equal(t, Marker{Block: 5, Group: 2}, m)

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Dir(sf.Base))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSideFilesMalformed(t *testing.T) {
	sf := SideFiles{Base: filepath.Join(t.TempDir(), "m.pbf")}
	require.NoError(t, os.WriteFile(sf.ProgressPath(), []byte("5-2\n"), 0o644))

	_, err := sf.LoadProgress()
	var sfe *SideFileError
	require.True(t, errors.As(err, &sfe))
	assert.Equal(t, 1, sfe.Line)

	require.NoError(t, os.WriteFile(sf.BlockInfoPath(), []byte("0:0:10\n1:10:x\n"), 0o644))
	require.NoError(t, os.WriteFile(sf.IndexInfoPath(), []byte(""), 0o644))
	_, err = sf.LoadIndex()
	require.True(t, errors.As(err, &sfe))
	assert.Equal(t, 2, sfe.Line)
}

func TestSideFilesComplete(t *testing.T) {
	data := pbftest.New().DenseNodes([]pbftest.Node{{ID: 1}}).MustBytes()
	idx, _, err := BuildIndex(context.Background(), source.NewMemory("x", data), IndexOptions{})
	require.NoError(t, err)

	sf := SideFiles{Base: filepath.Join(t.TempDir(), "c.pbf")}
	require.NoError(t, sf.SaveIndex(idx))
	assert.False(t, sf.Complete())
	require.NoError(t, sf.SaveProgress(Start))
	assert.True(t, sf.Complete())

	require.NoError(t, sf.Remove())
	assert.False(t, sf.Complete())
}

func TestMarkerCovers(t *testing.T) {
	m := Marker{Block: 5, Group: 2}
	assert.True(t, m.Covers(4, 9))
	assert.True(t, m.Covers(5, 0))
	assert.True(t, m.Covers(5, 2))
	assert.False(t, m.Covers(5, 3))
	assert.False(t, m.Covers(6, 0))

	assert.False(t, Start.Covers(1, 0))
	assert.True(t, Start.Covers(0, -1))
}
