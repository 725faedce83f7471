package pbf

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/qedus/osmpbf/OSMPBF"
	"google.golang.org/protobuf/proto"

	"github.com/beetlebugorg/osmgeo/internal/source"
)

// Required features this reader understands.
var supportedFeatures = map[string]bool{
	"OsmSchema-V0.6": true,
	"DenseNodes":     true,
}

// Header is the decoded file header (block 0).
type Header struct {
	Bounds              orb.Bound
	HasBounds           bool
	RequiredFeatures    []string
	OptionalFeatures    []string
	WritingProgram      string
	Source              string
	ReplicationSequence int64
	ReplicationTime     int64
}

// ReadHeader decodes block 0, which must be an OSMHeader blob.
func ReadHeader(ctx context.Context, src source.Source, bi BlockInfo) (*Header, error) {
	typ, data, err := readPayload(ctx, src, bi)
	if err != nil {
		return nil, err
	}
	if typ != typeHeader {
		return nil, &CorruptBlockError{BlockID: bi.ID, Offset: bi.Offset, Reason: fmt.Sprintf("expected %s blob, got %q", typeHeader, typ)}
	}
	return decodeHeader(bi, data)
}

func decodeHeader(bi BlockInfo, data []byte) (*Header, error) {
	hb := &OSMPBF.HeaderBlock{}
	if err := proto.Unmarshal(data, hb); err != nil {
		return nil, &CorruptBlockError{BlockID: bi.ID, Offset: bi.Offset, Reason: "header block", Err: err}
	}

	for _, f := range hb.GetRequiredFeatures() {
		if !supportedFeatures[f] {
			return nil, &UnsupportedFeatureError{Feature: f}
		}
	}

	h := &Header{
		RequiredFeatures:    hb.GetRequiredFeatures(),
		OptionalFeatures:    hb.GetOptionalFeatures(),
		WritingProgram:      hb.GetWritingprogram(),
		Source:              hb.GetSource(),
		ReplicationSequence: hb.GetOsmosisReplicationSequenceNumber(),
		ReplicationTime:     hb.GetOsmosisReplicationTimestamp(),
	}
	// Header bbox values are in nanodegrees.
	if bb := hb.GetBbox(); bb != nil {
		h.HasBounds = true
		h.Bounds = orb.Bound{
			Min: orb.Point{float64(bb.GetLeft()) / 1e9, float64(bb.GetBottom()) / 1e9},
			Max: orb.Point{float64(bb.GetRight()) / 1e9, float64(bb.GetTop()) / 1e9},
		}
	}
	return h, nil
}
