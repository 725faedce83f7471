package pbf

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/singleflight"

	"github.com/beetlebugorg/osmgeo/internal/source"
)

// Store decodes blocks on demand and caches them for one open file.
//
// Reads of cached blocks are lock-free. Concurrent first access to the same
// block decodes it once; different blocks decode in parallel.
//
// Eviction runs in generations. Every Get stamps the block with the current
// generation, and NextPass drops resident blocks that were not touched in the
// current or the previous generation. The orchestrator calls NextPass between
// groups, which bounds memory to the blocks the neighbouring groups use.
type Store struct {
	src    source.Source
	blocks []BlockInfo
	log    *slog.Logger

	cache  sync.Map // int -> *RawBlock
	flight singleflight.Group

	gen        atomic.Uint32
	lastAccess []atomic.Uint32

	mu       sync.Mutex // guards resident and cache writes
	resident *roaring.Bitmap

	hits      atomic.Uint64
	misses    atomic.Uint64
	decodes   atomic.Uint64
	evictions atomic.Uint64
	bytes     atomic.Int64
}

// NewStore creates a block store over src using the block table from an index.
func NewStore(src source.Source, blocks []BlockInfo, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		src:        src,
		blocks:     blocks,
		log:        log,
		lastAccess: make([]atomic.Uint32, len(blocks)),
		resident:   roaring.New(),
	}
	s.gen.Store(1)
	return s
}

// Get returns the decoded block id, decoding it on first access.
func (s *Store) Get(ctx context.Context, id int) (*RawBlock, error) {
	if id <= 0 || id >= len(s.blocks) {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotIndexed, id)
	}
	s.lastAccess[id].Store(s.gen.Load())

	if v, ok := s.cache.Load(id); ok {
		s.hits.Add(1)
		return v.(*RawBlock), nil
	}
	s.misses.Add(1)

	v, err, _ := s.flight.Do(strconv.Itoa(id), func() (any, error) {
		if v, ok := s.cache.Load(id); ok {
			return v, nil
		}
		bi := s.blocks[id]
		blk, err := ReadBlock(ctx, s.src, bi)
		if err != nil {
			return nil, err
		}
		if blk == nil {
			return nil, &CorruptBlockError{BlockID: id, Offset: bi.Offset, Reason: "not a data block"}
		}

		s.mu.Lock()
		s.cache.Store(id, blk)
		s.resident.Add(uint32(id))
		s.mu.Unlock()

		s.decodes.Add(1)
		s.bytes.Add(blk.Size())
		return blk, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RawBlock), nil
}

// NextPass evicts blocks untouched in the current and previous generation
// and starts a new generation. It returns the number of evicted blocks.
func (s *Store) NextPass() int {
	cur := s.gen.Load()

	s.mu.Lock()
	var stale []uint32
	it := s.resident.Iterator()
	for it.HasNext() {
		id := it.Next()
		if s.lastAccess[id].Load()+1 < cur {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		s.evictLocked(id)
	}
	s.mu.Unlock()

	s.gen.Add(1)
	return len(stale)
}

// EvictRandom drops roughly fraction of the resident blocks regardless of
// access. Used as memory backpressure.
func (s *Store) EvictRandom(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.resident.ToArray()
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	n := int(float64(len(ids)) * min(fraction, 1))
	for _, id := range ids[:n] {
		s.evictLocked(id)
	}
	if n > 0 {
		s.log.Debug("random block eviction", "evicted", n, "resident", s.resident.GetCardinality())
	}
	return n
}

func (s *Store) evictLocked(id uint32) {
	if v, ok := s.cache.LoadAndDelete(int(id)); ok {
		s.bytes.Add(-v.(*RawBlock).Size())
		s.evictions.Add(1)
	}
	s.resident.Remove(id)
}

// isResident reports whether block id is currently cached.
func (s *Store) isResident(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id >= 0 && s.resident.Contains(uint32(id))
}

// StoreStats is a snapshot of cache counters.
type StoreStats struct {
	Resident  uint64
	Bytes     int64
	Hits      uint64
	Misses    uint64
	Decodes   uint64
	Evictions uint64
}

// Stats returns current counters.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	resident := s.resident.GetCardinality()
	s.mu.Unlock()

	return StoreStats{
		Resident:  resident,
		Bytes:     s.bytes.Load(),
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Decodes:   s.decodes.Load(),
		Evictions: s.evictions.Load(),
	}
}
