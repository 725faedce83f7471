// Package geometry joins way fragments into rings and assembles polygons
// and multipolygons from them.
package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
)

// BuildRings joins coordinate sequences into closed rings.
//
// A sequence whose first and last coordinates are equal is a ring as is.
// Open sequences are joined iteratively: the partial ring is extended by the
// first unused sequence starting at its endpoint, or failing that by the
// first unused sequence ending there, reversed. When several sequences
// share the endpoint the earliest in input order wins. A partial ring that
// cannot be extended fails the whole set with ErrUnclosedRing.
//
// Sequences with fewer than two coordinates carry no edges and are ignored.
func BuildRings(seqs []orb.LineString) ([]orb.Ring, error) {
	var (
		rings []orb.Ring
		open  []orb.LineString
	)
	for _, s := range seqs {
		if len(s) < 2 {
			continue
		}
		if s[0] == s[len(s)-1] {
			rings = append(rings, append(orb.Ring(nil), s...))
			continue
		}
		open = append(open, s)
	}
	if len(open) == 0 {
		return rings, nil
	}

	// Endpoint lookups keep candidates in input order so that the first
	// unused entry is the first match in the original list.
	starts := make(map[orb.Point][]int, len(open))
	ends := make(map[orb.Point][]int, len(open))
	for i, s := range open {
		starts[s[0]] = append(starts[s[0]], i)
		ends[s[len(s)-1]] = append(ends[s[len(s)-1]], i)
	}
	used := make([]bool, len(open))
	firstUnused := func(candidates []int) int {
		for _, j := range candidates {
			if !used[j] {
				return j
			}
		}
		return -1
	}

	for i, s := range open {
		if used[i] {
			continue
		}
		used[i] = true
		ring := append(orb.Ring(nil), s...)

		for ring[0] != ring[len(ring)-1] {
			end := ring[len(ring)-1]
			if j := firstUnused(starts[end]); j >= 0 {
				used[j] = true
				ring = append(ring, open[j][1:]...)
				continue
			}
			if j := firstUnused(ends[end]); j >= 0 {
				used[j] = true
				frag := open[j]
				for k := len(frag) - 2; k >= 0; k-- {
					ring = append(ring, frag[k])
				}
				continue
			}
			return nil, fmt.Errorf("%w: open end at %v after %d coordinates", ErrUnclosedRing, end, len(ring))
		}
		rings = append(rings, ring)
	}
	return rings, nil
}
