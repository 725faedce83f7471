package pbf

import "fmt"

// Resolver maps entity ids to the index entry of the group holding them.
type Resolver struct {
	idx *Index
}

// NewResolver creates a resolver over an index.
func NewResolver(idx *Index) *Resolver {
	return &Resolver{idx: idx}
}

// Find returns the entry whose id range contains id, and its position in
// the per-kind entry list.
//
// hint is a position from a previous Find, or -1. Related entities cluster
// in id space, so callers resolving consecutive references pass the last
// position back in: the search probes the hint and its successor before
// bisecting from there.
//
// A missing id returns ErrEntityNotFound, which callers treat as a dangling
// reference rather than a failure.
func (r *Resolver) Find(id int64, kind EntityKind, hint int) (IndexEntry, int, error) {
	entries := r.idx.ByKind(kind)
	n := len(entries)
	if n == 0 {
		return IndexEntry{}, -1, r.notFound(id, kind)
	}

	lo, hi := 0, n-1
	mid := lo + (hi-lo)/2
	if hint >= 0 && hint < n {
		if entries[hint].Contains(id) {
			return entries[hint], hint, nil
		}
		if hint+1 < n && entries[hint+1].Contains(id) {
			return entries[hint+1], hint + 1, nil
		}
		mid = hint
	}

	for lo <= hi {
		e := entries[mid]
		switch {
		case id < e.MinID:
			hi = mid - 1
		case id > e.MaxID:
			lo = mid + 1
		default:
			return e, mid, nil
		}
		mid = lo + (hi-lo)/2
	}

	// Converged between two entries; check the neighbours before giving up.
	for _, p := range []int{lo - 1, lo, lo + 1} {
		if p >= 0 && p < n && entries[p].Contains(id) {
			return entries[p], p, nil
		}
	}
	return IndexEntry{}, -1, r.notFound(id, kind)
}

func (r *Resolver) notFound(id int64, kind EntityKind) error {
	return fmt.Errorf("%w: %s %d", ErrEntityNotFound, kind, id)
}
