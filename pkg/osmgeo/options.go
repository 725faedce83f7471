package osmgeo

import (
	"time"

	"github.com/paulmach/orb"
)

// Options configures a Converter.
//
// Start from DefaultOptions and override what you need. Zero values of
// numeric fields fall back to their defaults when the converter is opened,
// except MemoryThreshold where zero disables the memory monitor.
//
// Bounds, Regions and TargetRelation restrict which entities are
// converted; StyleSets restricts which tags are of interest. Entities that
// fall outside either are skipped, not reported as errors.
//
// Example:
//
//	opts := osmgeo.DefaultOptions()
//	opts.Bounds = orb.Bound{Min: orb.Point{7.40, 43.72}, Max: orb.Point{7.44, 43.76}}
//	opts.StyleSets = []string{"buildings"}
//	opts.Styles, _ = osmgeo.LoadStyles("styles.yaml")
//	opts.Logger = osmgeo.NewTextLogger(slog.LevelInfo)
type Options struct {
	// Bounds restricts output to entities with at least one coordinate
	// inside. The zero value means no restriction.
	Bounds orb.Bound

	// Regions are polygons to restrict output to, in addition to Bounds.
	Regions []orb.Geometry

	// TargetRelation, when non-zero, is resolved before the pass and the
	// envelope of its assembled area replaces Bounds and Regions as the
	// filter.
	TargetRelation int64

	// Styles is the registry StyleSets are looked up in.
	Styles *StyleRegistry

	// StyleSets names the style sets an entity must match. Empty means any
	// tagged entity is converted.
	StyleSets []string

	// Workers bounds concurrent entity builds within a group.
	// Default: GOMAXPROCS
	Workers int

	// IndexWorkers bounds concurrent block decodes while indexing.
	// Default: GOMAXPROCS
	IndexWorkers int

	// MemoryThreshold is the fraction of physical memory in use above
	// which cached blocks are evicted. Zero disables the monitor.
	// Default: 0.8
	MemoryThreshold float64

	// MemoryInterval is how often memory use is sampled.
	// Default: 1s
	MemoryInterval time.Duration

	// EvictFraction is the share of cached blocks dropped under pressure.
	// Default: 0.5
	EvictFraction float64

	// SideDir holds side files for inputs that are not local files. Local
	// inputs keep them next to the file unless SideDir is set.
	SideDir string

	// Orientation is the winding applied to polygons.
	// Default: ShellsCCW
	Orientation Orientation

	// ProgressInterval rate limits progress log lines.
	// Default: 10s
	ProgressInterval time.Duration

	Logger *Logger
}

// DefaultOptions returns options with defaults.
func DefaultOptions() Options {
	return Options{
		MemoryThreshold:  0.8,
		MemoryInterval:   time.Second,
		EvictFraction:    0.5,
		Orientation:      ShellsCCW,
		ProgressInterval: 10 * time.Second,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.MemoryInterval <= 0 {
		o.MemoryInterval = d.MemoryInterval
	}
	if o.EvictFraction <= 0 || o.EvictFraction > 1 {
		o.EvictFraction = d.EvictFraction
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = d.ProgressInterval
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}
}
