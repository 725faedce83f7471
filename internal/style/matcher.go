package style

import "github.com/beetlebugorg/osmgeo/internal/pbf"

// Matcher gates groups and entities with a predicate.
type Matcher struct {
	match Predicate
}

// NewMatcher wraps p. A nil predicate means HasTags.
func NewMatcher(p Predicate) *Matcher {
	if p == nil {
		p = HasTags
	}
	return &Matcher{match: p}
}

// Matches applies the predicate to one entity's tags.
func (m *Matcher) Matches(tags Tags) bool {
	return m.match(tags)
}

// MatchesNode is Matches for nodes. Untagged nodes are way vertices and
// never materialize on their own.
func (m *Matcher) MatchesNode(tags Tags) bool {
	return tags.Len() > 0 && m.match(tags)
}

// CanSkipGroup reports whether no entity in group i of blk can match.
// Tags are read straight from the raw key/value arrays. The first match
// anywhere in the group returns false, and so does a group whose kind
// differs from kind.
func (m *Matcher) CanSkipGroup(kind pbf.EntityKind, blk *pbf.RawBlock, i int) bool {
	if k, ok := blk.GroupKind(i); !ok || k != kind {
		return false
	}

	switch kind {
	case pbf.Node:
		skip := true
		blk.EachNodeTags(i, func(_ int, tags pbf.Tags) bool {
			if m.MatchesNode(tags) {
				skip = false
				return false
			}
			return true
		})
		return skip

	case pbf.Way:
		for _, w := range blk.Groups[i].GetWays() {
			if m.match(blk.WayTags(w)) {
				return false
			}
		}
		return true

	case pbf.Relation:
		for _, r := range blk.Groups[i].GetRelations() {
			if m.match(blk.RelationTags(r)) {
				return false
			}
		}
		return true
	}
	return false
}
