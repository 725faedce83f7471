package osmgeo

import (
	"context"
	"math"
	"runtime/debug"
	"runtime/metrics"
	"sync/atomic"
	"time"
)

const (
	metricTotal    = "/memory/classes/total:bytes"
	metricReleased = "/memory/classes/heap/released:bytes"
)

// MemoryMonitor samples the Go runtime's memory use against physical memory
// and evicts cached blocks when the ratio crosses a threshold.
type MemoryMonitor struct {
	threshold float64
	fraction  float64
	interval  time.Duration
	total     uint64
	evict     func(fraction float64) int
	used      func() uint64
	log       *Logger

	pressure atomic.Uint64 // float64 bits
}

// NewMemoryMonitor creates a monitor calling evict(fraction) whenever memory
// use exceeds threshold of physical memory. It returns nil when physical
// memory cannot be determined on this platform.
func NewMemoryMonitor(threshold, fraction float64, interval time.Duration, evict func(float64) int, log *Logger) *MemoryMonitor {
	total := totalMemory()
	if total == 0 || threshold <= 0 {
		return nil
	}
	return &MemoryMonitor{
		threshold: threshold,
		fraction:  fraction,
		interval:  interval,
		total:     total,
		evict:     evict,
		used:      runtimeMemory,
		log:       log,
	}
}

// Run samples until ctx is done.
func (m *MemoryMonitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Check(ctx)
		}
	}
}

// Check takes one sample and evicts if needed. It reports whether it evicted.
func (m *MemoryMonitor) Check(ctx context.Context) bool {
	p := float64(m.used()) / float64(m.total)
	m.pressure.Store(math.Float64bits(p))
	if p <= m.threshold {
		return false
	}
	n := m.evict(m.fraction)
	debug.FreeOSMemory()
	m.log.LogEviction(ctx, n, p)
	return true
}

// Pressure returns the last sampled fraction of physical memory in use.
func (m *MemoryMonitor) Pressure() float64 {
	if m == nil {
		return 0
	}
	return math.Float64frombits(m.pressure.Load())
}

// runtimeMemory is memory mapped by the Go runtime minus what it has
// already returned to the OS.
func runtimeMemory() uint64 {
	samples := []metrics.Sample{{Name: metricTotal}, {Name: metricReleased}}
	metrics.Read(samples)
	var used, released uint64
	if samples[0].Value.Kind() == metrics.KindUint64 {
		used = samples[0].Value.Uint64()
	}
	if samples[1].Value.Kind() == metrics.KindUint64 {
		released = samples[1].Value.Uint64()
	}
	if released > used {
		return 0
	}
	return used - released
}
