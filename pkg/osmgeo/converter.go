package osmgeo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/beetlebugorg/osmgeo/internal/assemble"
	"github.com/beetlebugorg/osmgeo/internal/geometry"
	"github.com/beetlebugorg/osmgeo/internal/pbf"
	"github.com/beetlebugorg/osmgeo/internal/source"
	"github.com/beetlebugorg/osmgeo/internal/style"
)

// Header is the decoded OSMHeader block of the input.
type Header = pbf.Header

// State is the phase a Converter is in.
type State int32

const (
	StateIndexing State = iota
	StateReady
	StateNodePass
	StateWayPass
	StateRelationPass
	StateStopped
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIndexing:     "indexing",
	StateReady:        "ready",
	StateNodePass:     "node_pass",
	StateWayPass:      "way_pass",
	StateRelationPass: "relation_pass",
	StateStopped:      "stopped",
	StateDone:         "done",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func parseState(name string) State {
	for i, n := range stateNames {
		if n == name {
			return State(i)
		}
	}
	return StateFailed
}

func passState(k Kind) State {
	switch k {
	case Node:
		return StateNodePass
	case Way:
		return StateWayPass
	}
	return StateRelationPass
}

// CacheStats are block cache counters.
type CacheStats struct {
	Resident  uint64 `json:"resident"`
	Bytes     int64  `json:"bytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Decodes   uint64 `json:"decodes"`
	Evictions uint64 `json:"evictions"`
}

// Status is a point-in-time view of a Converter.
type Status struct {
	RunID          string     `json:"run_id,omitempty"`
	Source         string     `json:"source"`
	State          State      `json:"state"`
	Marker         string     `json:"marker"`
	Groups         int        `json:"groups"`
	GroupsDone     int        `json:"groups_done"`
	Committed      uint64     `json:"committed"`
	Dropped        uint64     `json:"dropped"`
	SkippedGroups  uint64     `json:"skipped_groups"`
	Fallbacks      uint64     `json:"fallbacks"`
	CorruptGroups  uint64     `json:"corrupt_groups"`
	MemoryPressure float64    `json:"memory_pressure"`
	Cache          CacheStats `json:"cache"`
	StartedAt      time.Time  `json:"started_at,omitzero"`
}

// Converter turns one PBF input into entities. Create it with Open or
// OpenSource, call Run, and Close it when done.
//
// Opening a file indexes it once and writes the index next to it (or into
// Options.SideDir). Run walks the groups in file order and commits each
// group to the sink before recording it as done, so a run that is stopped,
// cancelled or killed continues where it left off the next time the same
// file is opened. At most the group in flight is delivered twice.
//
// Status and Stop are safe to call from other goroutines while Run is
// active.
//
// Example:
//
//	conv, err := osmgeo.Open(ctx, "monaco-latest.osm.pbf", osmgeo.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer conv.Close()
//
//	sink := osmgeo.NewMemorySink()
//	if err := conv.Run(ctx, sink); err != nil {
//	    return err
//	}
//	fmt.Printf("%d entities\n", sink.Len())
type Converter struct {
	src     source.Source
	opts    Options
	log     *Logger
	side    pbf.SideFiles
	idx     *pbf.Index
	header  *pbf.Header
	resumed bool
	store   *pbf.Store
	asm     *assemble.Assembler
	workers int

	running atomic.Bool
	stopped atomic.Bool

	mu        sync.Mutex
	state     State
	marker    pbf.Marker
	runID     string
	startedAt time.Time
	monitor   *MemoryMonitor

	committed atomic.Uint64
	dropped   atomic.Uint64
	skipped   atomic.Uint64
	fallbacks atomic.Uint64
	corrupt   atomic.Uint64
}

// Open opens the PBF file at path. Side files are kept next to it unless
// opts.SideDir is set.
func Open(ctx context.Context, path string, opts Options) (*Converter, error) {
	src, err := source.OpenFile(path)
	if err != nil {
		return nil, err
	}
	c, err := OpenSource(ctx, src, opts)
	if err != nil {
		src.Close()
		return nil, err
	}
	return c, nil
}

// OpenSource prepares a conversion of src. When complete side files exist
// and match the input, the index and progress marker are loaded from them;
// otherwise any side files are removed and the input is indexed afresh.
//
// On success the converter owns src and Close closes it.
func OpenSource(ctx context.Context, src source.Source, opts Options) (*Converter, error) {
	opts.applyDefaults()

	side, err := sideFiles(src, opts.SideDir)
	if err != nil {
		return nil, err
	}

	var pred style.Predicate
	if len(opts.StyleSets) > 0 {
		reg := opts.Styles
		if reg == nil {
			reg = style.NewRegistry()
		}
		if pred, err = reg.Predicate(opts.StyleSets...); err != nil {
			return nil, err
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	c := &Converter{
		src:     src,
		opts:    opts,
		log:     opts.Logger,
		side:    side,
		workers: workers,
		state:   StateIndexing,
	}
	if err := c.loadOrIndex(ctx); err != nil {
		return nil, err
	}

	c.store = pbf.NewStore(src, c.idx.Blocks, c.log.Logger)
	c.asm = assemble.New(assemble.Config{
		Store:    c.store,
		Resolver: pbf.NewResolver(c.idx),
		Matcher:  style.NewMatcher(pred),
		Filter:   regionFilter(opts),
		Logger:   c.log.Logger,
	})
	c.state = StateReady
	return c, nil
}

func sideFiles(src source.Source, dir string) (pbf.SideFiles, error) {
	if dir != "" {
		return pbf.SideFiles{Base: filepath.Join(dir, filepath.Base(src.Name()))}, nil
	}
	if l, ok := src.(source.Local); ok {
		return pbf.SideFiles{Base: l.Path()}, nil
	}
	return pbf.SideFiles{}, ErrNoSideDir
}

func regionFilter(opts Options) *geometry.Filter {
	regions := append([]orb.Geometry(nil), opts.Regions...)
	if !opts.Bounds.IsZero() {
		regions = append(regions, opts.Bounds)
	}
	return geometry.NewFilter(regions...)
}

func (c *Converter) loadOrIndex(ctx context.Context) error {
	idx, header, marker, err := c.resume(ctx)
	if err == nil {
		c.idx, c.header, c.marker, c.resumed = idx, header, marker, true
		c.log.InfoContext(ctx, "resuming from side files", "source", c.src.Name(), "marker", marker)
		return nil
	}
	if !errors.Is(err, pbf.ErrNoSideFiles) {
		c.log.WarnContext(ctx, "side files unusable, reindexing", "source", c.src.Name(), "error", err)
	}

	if err := c.side.Remove(); err != nil {
		return err
	}
	idx, header, err = pbf.BuildIndex(ctx, c.src, pbf.IndexOptions{
		Workers: c.opts.IndexWorkers,
		Logger:  c.log.Logger,
	})
	if err != nil {
		return err
	}
	if err := c.side.SaveIndex(idx); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if err := c.side.SaveProgress(pbf.Start); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	c.idx, c.header, c.marker = idx, header, pbf.Start
	return nil
}

// resume loads persisted state and rereads the header from block 0. Any
// missing side file yields ErrNoSideFiles.
func (c *Converter) resume(ctx context.Context) (*pbf.Index, *pbf.Header, pbf.Marker, error) {
	if !c.side.Complete() {
		return nil, nil, pbf.Marker{}, pbf.ErrNoSideFiles
	}
	idx, err := c.side.LoadIndex()
	if err != nil {
		return nil, nil, pbf.Marker{}, err
	}
	last := idx.Blocks[len(idx.Blocks)-1]
	if end := last.Offset + last.Size; end != c.src.Size() {
		return nil, nil, pbf.Marker{}, fmt.Errorf("block table ends at %d but input is %d bytes", end, c.src.Size())
	}
	header, err := pbf.ReadHeader(ctx, c.src, idx.Blocks[0])
	if err != nil {
		return nil, nil, pbf.Marker{}, fmt.Errorf("header: %w", err)
	}
	m, err := c.side.LoadProgress()
	if err != nil {
		return nil, nil, pbf.Marker{}, err
	}
	return idx, header, m, nil
}

// Header returns the input's header block.
func (c *Converter) Header() *Header {
	return c.header
}

// Resumed reports whether the index and progress marker were loaded from
// side files left by an earlier run.
func (c *Converter) Resumed() bool {
	return c.resumed
}

// Run converts every group after the progress marker and commits each
// group's entities to sink before advancing the marker.
//
// Entities that reference missing data or do not form valid geometry are
// logged and dropped. A group in a block that cannot be decoded is logged
// and skipped. Run returns ErrStopped when Stop ended the pass early.
func (c *Converter) Run(ctx context.Context, sink Sink) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.running.Store(false)

	runID := uuid.NewString()
	log := c.log.WithRun(runID)
	c.mu.Lock()
	c.runID = runID
	c.startedAt = time.Now()
	c.mu.Unlock()

	if id := c.opts.TargetRelation; id != 0 {
		g, err := c.asm.RelationGeometry(ctx, id)
		if err != nil {
			c.setState(StateFailed)
			return fmt.Errorf("target relation %d: %w", id, err)
		}
		env := g.Bound()
		c.asm.SetFilter(geometry.NewFilter(env))
		log.InfoContext(ctx, "filtering to target relation envelope", "relation", id, "bound", env)
	}

	mctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if m := NewMemoryMonitor(c.opts.MemoryThreshold, c.opts.EvictFraction, c.opts.MemoryInterval, c.store.EvictRandom, log); m != nil {
		c.mu.Lock()
		c.monitor = m
		c.mu.Unlock()
		go m.Run(mctx)
	}

	recorder, _ := sink.(RunRecorder)
	if recorder != nil {
		if err := recorder.RecordRun(ctx, c.runInfo()); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}

	log.InfoContext(ctx, "conversion started", "source", c.src.Name(), "marker", c.currentMarker())
	err := c.pass(ctx, sink, log)

	switch {
	case err == nil:
		c.setState(StateDone)
		log.InfoContext(ctx, "conversion finished",
			"committed", c.committed.Load(),
			"dropped", c.dropped.Load(),
			"fallbacks", c.fallbacks.Load(),
			"corrupt_groups", c.corrupt.Load())
	case errors.Is(err, ErrStopped):
		c.setState(StateStopped)
		log.InfoContext(ctx, "conversion stopped", "marker", c.currentMarker())
	default:
		c.setState(StateFailed)
	}

	if recorder != nil {
		if rerr := recorder.RecordRun(context.WithoutCancel(ctx), c.runInfo()); rerr != nil && err == nil {
			err = fmt.Errorf("record run: %w", rerr)
		}
	}
	return err
}

func (c *Converter) pass(ctx context.Context, sink Sink, log *Logger) error {
	progress := rate.Sometimes{Interval: c.opts.ProgressInterval}
	for _, e := range c.idx.Entries() {
		if c.stopped.Load() {
			return ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.currentMarker().Covers(e.Block, e.Group) {
			continue
		}
		c.setState(passState(e.Kind))

		ref := GroupRef{Kind: e.Kind, Block: e.Block, Group: e.Group, Last: e.Group}
		entities, dropped, err := c.group(ctx, &ref, e, log)
		if err != nil {
			return err
		}
		if len(entities) > 0 {
			if err := sink.Commit(ctx, ref, entities); err != nil {
				return fmt.Errorf("commit block %d group %d: %w", ref.Block, ref.Group, err)
			}
			c.committed.Add(uint64(len(entities)))
		}
		log.LogGroupCommitted(ctx, ref, len(entities), dropped)

		if err := c.advance(pbf.Marker{Block: ref.Block, Group: ref.Last}); err != nil {
			return err
		}
		c.store.NextPass()

		progress.Do(func() {
			st := c.Status()
			log.InfoContext(ctx, "progress",
				"state", st.State,
				"groups_done", st.GroupsDone,
				"groups", st.Groups,
				"committed", st.Committed,
				"dropped", st.Dropped,
				"cached_blocks", st.Cache.Resident)
		})
	}
	return nil
}

// group builds the entities of one group. ref.Last is widened when a node
// run spans several groups. A group in a block that cannot be decoded
// yields nothing and is not an error.
func (c *Converter) group(ctx context.Context, ref *GroupRef, e pbf.IndexEntry, log *Logger) ([]Entity, int, error) {
	blk, err := c.store.Get(ctx, e.Block)
	if err != nil {
		var corrupt *pbf.CorruptBlockError
		if errors.As(err, &corrupt) {
			c.corrupt.Add(1)
			log.LogCorruptGroup(ctx, *ref, err)
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var (
		built   []*assemble.Entity
		dropped int
	)
	if e.Kind == pbf.Node {
		built, ref.Last, err = c.asm.BuildNodes(ctx, blk, e.Group)
	} else {
		if c.asm.Matcher().CanSkipGroup(e.Kind, blk, e.Group) {
			c.skipped.Add(1)
			return nil, 0, nil
		}
		built, dropped, err = c.buildParallel(ctx, blk, e, log)
		if err != nil && ctx.Err() == nil {
			c.fallbacks.Add(1)
			log.LogFallback(ctx, *ref, err)
			built, dropped, err = c.buildSequential(ctx, blk, e, log)
		}
	}
	if err != nil {
		return nil, 0, err
	}

	out := make([]Entity, 0, len(built))
	for _, b := range built {
		g, err := assemble.Geometry(b, c.opts.Orientation)
		if err != nil {
			c.drop(ctx, log, b.Kind, b.ID, err)
			dropped++
			continue
		}
		out = append(out, Entity{Kind: b.Kind, ID: b.ID, Tags: b.Tags, Geometry: g})
	}
	return out, dropped, nil
}

// buildParallel builds each entity of a way or relation group as its own
// task. Recoverable failures drop the entity; anything else fails the
// whole group so the caller can retry it sequentially.
func (c *Converter) buildParallel(ctx context.Context, blk *pbf.RawBlock, e pbf.IndexEntry, log *Logger) ([]*assemble.Entity, int, error) {
	n := groupLen(blk, e)
	var (
		out  = make([]*assemble.Entity, n)
		ids  = make([]int64, n)
		errs = make([]error, n)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range n {
		g.Go(func() error {
			ent, id, err := c.buildOne(gctx, blk, e, i)
			ids[i] = id
			if err != nil {
				if assemble.IsRecoverable(err) {
					errs[i] = err
					return nil
				}
				return err
			}
			out[i] = ent
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	// Drops are only reported once the group as a whole succeeded.
	dropped := 0
	for i, err := range errs {
		if err != nil {
			c.drop(ctx, log, e.Kind, ids[i], err)
			dropped++
		}
	}
	return compact(out), dropped, nil
}

// buildSequential builds entities one at a time and drops any entity that
// fails, whatever the reason. Only cancellation aborts it.
func (c *Converter) buildSequential(ctx context.Context, blk *pbf.RawBlock, e pbf.IndexEntry, log *Logger) ([]*assemble.Entity, int, error) {
	var (
		out     []*assemble.Entity
		dropped int
	)
	for i := range groupLen(blk, e) {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		ent, id, err := c.buildOne(ctx, blk, e, i)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, 0, cerr
			}
			c.drop(ctx, log, e.Kind, id, err)
			dropped++
			continue
		}
		if ent != nil {
			out = append(out, ent)
		}
	}
	return out, dropped, nil
}

func (c *Converter) buildOne(ctx context.Context, blk *pbf.RawBlock, e pbf.IndexEntry, i int) (ent *assemble.Entity, id int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	g := blk.Groups[e.Group]
	switch e.Kind {
	case pbf.Way:
		w := g.GetWays()[i]
		id = w.GetId()
		ent, err = c.asm.BuildWay(ctx, blk, w)
	case pbf.Relation:
		r := g.GetRelations()[i]
		id = r.GetId()
		ent, err = c.asm.BuildRelation(ctx, blk, r)
	}
	return ent, id, err
}

func groupLen(blk *pbf.RawBlock, e pbf.IndexEntry) int {
	g := blk.Groups[e.Group]
	if e.Kind == pbf.Way {
		return len(g.GetWays())
	}
	return len(g.GetRelations())
}

func compact(in []*assemble.Entity) []*assemble.Entity {
	out := in[:0]
	for _, e := range in {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (c *Converter) drop(ctx context.Context, log *Logger, kind Kind, id int64, err error) {
	c.dropped.Add(1)
	log.LogEntityDropped(ctx, kind, id, err)
}

func (c *Converter) advance(m pbf.Marker) error {
	if err := c.side.SaveProgress(m); err != nil {
		return fmt.Errorf("save progress %s: %w", m, err)
	}
	c.mu.Lock()
	c.marker = m
	c.mu.Unlock()
	return nil
}

func (c *Converter) currentMarker() pbf.Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marker
}

func (c *Converter) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Converter) runInfo() RunInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RunInfo{
		ID:        c.runID,
		Source:    c.src.Name(),
		State:     c.state,
		Committed: c.committed.Load(),
		Dropped:   c.dropped.Load(),
		StartedAt: c.startedAt,
		UpdatedAt: time.Now(),
	}
}

// Stop asks Run to return ErrStopped at the next group boundary. The
// group in flight is committed first. Stop is permanent for this
// Converter; open a new one to resume.
func (c *Converter) Stop() {
	c.stopped.Store(true)
}

// Status returns a snapshot of progress and cache counters.
func (c *Converter) Status() Status {
	c.mu.Lock()
	state, marker, runID, started, monitor := c.state, c.marker, c.runID, c.startedAt, c.monitor
	c.mu.Unlock()

	entries := c.idx.Entries()
	done := sort.Search(len(entries), func(i int) bool {
		return !marker.Covers(entries[i].Block, entries[i].Group)
	})
	st := c.store.Stats()
	return Status{
		RunID:          runID,
		Source:         c.src.Name(),
		State:          state,
		Marker:         marker.String(),
		Groups:         len(entries),
		GroupsDone:     done,
		Committed:      c.committed.Load(),
		Dropped:        c.dropped.Load(),
		SkippedGroups:  c.skipped.Load(),
		Fallbacks:      c.fallbacks.Load(),
		CorruptGroups:  c.corrupt.Load(),
		MemoryPressure: monitor.Pressure(),
		Cache: CacheStats{
			Resident:  st.Resident,
			Bytes:     st.Bytes,
			Hits:      st.Hits,
			Misses:    st.Misses,
			Decodes:   st.Decodes,
			Evictions: st.Evictions,
		},
		StartedAt: started,
	}
}

// Close releases the input.
func (c *Converter) Close() error {
	return c.src.Close()
}
