package pbf

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/beetlebugorg/osmgeo/internal/source"
)

// BlockInfo locates one block in the input.
type BlockInfo struct {
	ID     int
	Offset int64
	Size   int64
}

// IndexEntry describes one primitive group: where it lives and the id range it covers.
type IndexEntry struct {
	Block int
	Group int
	Kind  EntityKind
	MinID int64
	MaxID int64
}

// Contains reports whether id falls within the entry's range.
func (e IndexEntry) Contains(id int64) bool {
	return id >= e.MinID && id <= e.MaxID
}

// Index is the immutable result of an index pass.
type Index struct {
	Blocks    []BlockInfo
	Nodes     []IndexEntry
	Ways      []IndexEntry
	Relations []IndexEntry

	all []IndexEntry
}

// NewIndex sorts entries, splits them by kind and checks that ranges of
// the same kind do not overlap.
func NewIndex(blocks []BlockInfo, entries []IndexEntry) (*Index, error) {
	for i, b := range blocks {
		if b.ID != i {
			return nil, fmt.Errorf("pbf: block table out of order at %d (id %d)", i, b.ID)
		}
	}

	all := append([]IndexEntry(nil), entries...)
	sort.Slice(all, func(i, j int) bool {
		if all[i].Block != all[j].Block {
			return all[i].Block < all[j].Block
		}
		return all[i].Group < all[j].Group
	})

	idx := &Index{Blocks: blocks, all: all}
	for _, e := range all {
		if e.Block <= 0 || e.Block >= len(blocks) {
			return nil, fmt.Errorf("%w: entry references block %d", ErrBlockNotIndexed, e.Block)
		}
		switch e.Kind {
		case Node:
			idx.Nodes = append(idx.Nodes, e)
		case Way:
			idx.Ways = append(idx.Ways, e)
		case Relation:
			idx.Relations = append(idx.Relations, e)
		default:
			return nil, fmt.Errorf("pbf: entry with unknown kind %d", e.Kind)
		}
	}

	for _, list := range [][]IndexEntry{idx.Nodes, idx.Ways, idx.Relations} {
		sort.SliceStable(list, func(i, j int) bool { return list[i].MinID < list[j].MinID })
		for i := 1; i < len(list); i++ {
			if list[i].MinID <= list[i-1].MaxID {
				return nil, &OverlapError{First: list[i-1], Second: list[i]}
			}
		}
	}
	return idx, nil
}

// ByKind returns the entries of one kind sorted by MinID.
func (x *Index) ByKind(kind EntityKind) []IndexEntry {
	switch kind {
	case Node:
		return x.Nodes
	case Way:
		return x.Ways
	case Relation:
		return x.Relations
	}
	return nil
}

// Entries returns every entry in file order, by (block, group).
func (x *Index) Entries() []IndexEntry {
	return x.all
}

// Block returns the location of block id.
func (x *Index) Block(id int) (BlockInfo, bool) {
	if id < 0 || id >= len(x.Blocks) {
		return BlockInfo{}, false
	}
	return x.Blocks[id], true
}

// IndexOptions controls an index pass.
type IndexOptions struct {
	// Workers bounds concurrent block decodes. Zero means GOMAXPROCS.
	Workers int

	Logger *slog.Logger
}

// BuildIndex scans the whole input once. The header block is decoded
// immediately; every other block becomes an independent decode task that
// records one IndexEntry per group. Any framing or decode failure aborts
// the pass and no partial index is returned.
func BuildIndex(ctx context.Context, src source.Source, opts IndexOptions) (*Index, *Header, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	blocks, err := scanBlocks(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	header, err := ReadHeader(ctx, src, blocks[0])
	if err != nil {
		return nil, nil, err
	}
	log.DebugContext(ctx, "scanned block framing", "source", src.Name(), "blocks", len(blocks))

	perBlock := make([][]IndexEntry, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, bi := range blocks[1:] {
		g.Go(func() error {
			blk, err := ReadBlock(gctx, src, bi)
			if err != nil {
				return err
			}
			if blk != nil {
				perBlock[bi.ID] = blk.entries()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var entries []IndexEntry
	for _, es := range perBlock {
		entries = append(entries, es...)
	}
	idx, err := NewIndex(blocks, entries)
	if err != nil {
		return nil, nil, err
	}
	log.InfoContext(ctx, "index built",
		"source", src.Name(),
		"blocks", len(blocks),
		"node_groups", len(idx.Nodes),
		"way_groups", len(idx.Ways),
		"relation_groups", len(idx.Relations))
	return idx, header, nil
}
