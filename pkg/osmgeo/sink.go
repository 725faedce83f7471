package osmgeo

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"
)

// Sink receives the entities of one group at a time. Commit must be atomic
// for the group, and committing the same group again must leave the same
// result: after a crash the last group may be delivered twice.
//
// The converter calls Commit from a single goroutine and only for groups
// that produced at least one entity. Returning an error fails the run
// without advancing the progress marker, so the group is retried on the
// next run.
//
// Example:
//
//	type countSink struct{ n int }
//
//	func (s *countSink) Commit(_ context.Context, ref osmgeo.GroupRef, entities []osmgeo.Entity) error {
//	    s.n += len(entities)
//	    return nil
//	}
type Sink interface {
	Commit(ctx context.Context, ref GroupRef, entities []Entity) error
}

// RunInfo describes one Run call.
type RunInfo struct {
	ID        string
	Source    string
	State     State
	Committed uint64
	Dropped   uint64
	StartedAt time.Time
	UpdatedAt time.Time
}

// RunRecorder is implemented by sinks that keep a history of runs. The
// converter records the run when it starts and again when it ends.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunInfo) error
}

// MemorySink keeps entities in memory ordered by (kind, id).
//
// A later commit of the same entity replaces the earlier one, which makes
// redelivery after a resume harmless. Every commit is also recorded, so
// tests can check which groups were delivered. It is safe for concurrent
// use.
//
// Example:
//
//	sink := osmgeo.NewMemorySink()
//	if err := conv.Run(ctx, sink); err != nil {
//	    return err
//	}
//	sink.Ascend(func(e osmgeo.Entity) bool {
//	    fmt.Println(e.Kind, e.ID, e.Geometry.GeoJSONType())
//	    return true
//	})
type MemorySink struct {
	mu      sync.RWMutex
	tree    *btree.BTreeG[Entity]
	commits []GroupRef
}

func entityLess(a, b Entity) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.ID < b.ID
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{tree: btree.NewG(32, entityLess)}
}

// Commit upserts entities.
func (s *MemorySink) Commit(_ context.Context, ref GroupRef, entities []Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.tree.ReplaceOrInsert(e)
	}
	s.commits = append(s.commits, ref)
	return nil
}

// Len returns the number of stored entities.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Get looks up one entity.
func (s *MemorySink) Get(kind Kind, id int64) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Get(Entity{Kind: kind, ID: id})
}

// Ascend calls fn for every entity in (kind, id) order until fn returns false.
func (s *MemorySink) Ascend(fn func(Entity) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.tree.Ascend(fn)
}

// Commits returns every commit received, in order.
func (s *MemorySink) Commits() []GroupRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]GroupRef(nil), s.commits...)
}
