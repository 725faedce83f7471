package assemble

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/qedus/osmpbf/OSMPBF"

	"github.com/beetlebugorg/osmgeo/internal/geometry"
	"github.com/beetlebugorg/osmgeo/internal/pbf"
)

// batch is the set of reference slots served by one node group.
type batch struct {
	entry pbf.IndexEntry
	slots []int
}

// wayCoords resolves a way's node references in reference order. References
// are first grouped by the index entry holding them, then each group is
// decoded once and all of its references are read in a single pass.
func (a *Assembler) wayCoords(ctx context.Context, w *OSMPBF.Way) (orb.LineString, error) {
	refs := pbf.WayRefs(w)
	if len(refs) == 0 {
		return nil, fmt.Errorf("way %d: %w", w.GetId(), ErrNoCoordinates)
	}

	var (
		batches = make(map[int]*batch)
		order   []int
		hint    = -1
	)
	for i, id := range refs {
		entry, pos, err := a.resolver.Find(id, pbf.Node, hint)
		if err != nil {
			if errors.Is(err, pbf.ErrEntityNotFound) {
				return nil, &missingRef{kind: pbf.Node, id: id}
			}
			return nil, err
		}
		hint = pos

		b, ok := batches[pos]
		if !ok {
			b = &batch{entry: entry}
			batches[pos] = b
			order = append(order, pos)
		}
		b.slots = append(b.slots, i)
	}

	coords := make(orb.LineString, len(refs))
	for _, pos := range order {
		b := batches[pos]
		blk, err := a.store.Get(ctx, b.entry.Block)
		if err != nil {
			return nil, err
		}
		ng := blk.NodeGroup(b.entry.Group)
		if ng == nil {
			return nil, fmt.Errorf("block %d group %d: index entry holds no nodes", b.entry.Block, b.entry.Group)
		}
		for _, slot := range b.slots {
			j, ok := ng.Find(refs[slot])
			if !ok {
				return nil, &missingRef{kind: pbf.Node, id: refs[slot]}
			}
			coords[slot] = ng.Coord(j)
		}
	}

	if err := geometry.ValidateCoordinates(coords); err != nil {
		return nil, fmt.Errorf("way %d: %w", w.GetId(), err)
	}
	return coords, nil
}
