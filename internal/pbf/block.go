package pbf

import (
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/qedus/osmpbf/OSMPBF"
	"google.golang.org/protobuf/proto"
)

// RawBlock is a decoded primitive block: its groups, the shared string
// table and the coordinate transform used by every group inside it.
type RawBlock struct {
	ID          int
	Strings     []string
	Granularity int64
	LatOffset   int64
	LonOffset   int64
	Groups      []*OSMPBF.PrimitiveGroup

	size int64

	once  []sync.Once
	nodes []*NodeGroup
	ids   []idIndex
}

func decodePrimitiveBlock(id int, data []byte) (*RawBlock, error) {
	pb := &OSMPBF.PrimitiveBlock{}
	if err := proto.Unmarshal(data, pb); err != nil {
		return nil, err
	}

	strs := pb.GetStringtable().GetS()

	groups := pb.GetPrimitivegroup()
	return &RawBlock{
		ID:          id,
		Strings:     strs,
		Granularity: int64(pb.GetGranularity()),
		LatOffset:   pb.GetLatOffset(),
		LonOffset:   pb.GetLonOffset(),
		Groups:      groups,
		size:        int64(len(data)),
		once:        make([]sync.Once, len(groups)),
		nodes:       make([]*NodeGroup, len(groups)),
		ids:         make([]idIndex, len(groups)),
	}, nil
}

// Size is the decoded payload size in bytes.
func (b *RawBlock) Size() int64 { return b.size }

// Coord converts raw lat/lon values of this block to a lon/lat point.
func (b *RawBlock) Coord(lat, lon int64) orb.Point {
	return orb.Point{
		float64(b.LonOffset+b.Granularity*lon) / 1e9,
		float64(b.LatOffset+b.Granularity*lat) / 1e9,
	}
}

// GroupKind reports the entity kind of group i. Empty groups and
// changeset-only groups report false.
func (b *RawBlock) GroupKind(i int) (EntityKind, bool) {
	if i < 0 || i >= len(b.Groups) {
		return 0, false
	}
	return groupKind(b.Groups[i])
}

func groupKind(g *OSMPBF.PrimitiveGroup) (EntityKind, bool) {
	switch {
	case len(g.GetDense().GetId()) > 0 || len(g.GetNodes()) > 0:
		return Node, true
	case len(g.GetWays()) > 0:
		return Way, true
	case len(g.GetRelations()) > 0:
		return Relation, true
	}
	return 0, false
}

// entries computes one IndexEntry per non-empty group.
func (b *RawBlock) entries() []IndexEntry {
	var out []IndexEntry
	for gi, g := range b.Groups {
		kind, ok := groupKind(g)
		if !ok {
			continue
		}
		lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
		observe := func(id int64) {
			lo = min(lo, id)
			hi = max(hi, id)
		}

		switch kind {
		case Node:
			var id int64
			for _, d := range g.GetDense().GetId() {
				id += d
				observe(id)
			}
			for _, n := range g.GetNodes() {
				observe(n.GetId())
			}
		case Way:
			for _, w := range g.GetWays() {
				observe(w.GetId())
			}
		case Relation:
			for _, r := range g.GetRelations() {
				observe(r.GetId())
			}
		}
		out = append(out, IndexEntry{Block: b.ID, Group: gi, Kind: kind, MinID: lo, MaxID: hi})
	}
	return out
}

func (b *RawBlock) str(i int) string {
	if i < 0 || i >= len(b.Strings) {
		return ""
	}
	return b.Strings[i]
}

// Tags is a read-only view of an entity's tags straight from the block's
// raw index arrays. It never copies strings.
type Tags struct {
	strings    []string
	keys, vals []uint32
	kv         []int32 // dense key/value pairs, terminator excluded
}

// Len returns the number of tags.
func (t Tags) Len() int {
	if t.kv != nil {
		return len(t.kv) / 2
	}
	return min(len(t.keys), len(t.vals))
}

// At returns the i-th key and value.
func (t Tags) At(i int) (string, string) {
	if t.kv != nil {
		return t.lookupString(int(t.kv[2*i])), t.lookupString(int(t.kv[2*i+1]))
	}
	return t.lookupString(int(t.keys[i])), t.lookupString(int(t.vals[i]))
}

// Lookup returns the value for key.
func (t Tags) Lookup(key string) (string, bool) {
	for i := 0; i < t.Len(); i++ {
		if k, v := t.At(i); k == key {
			return v, true
		}
	}
	return "", false
}

// Map copies the tags into a map.
func (t Tags) Map() map[string]string {
	m := make(map[string]string, t.Len())
	for i := 0; i < t.Len(); i++ {
		k, v := t.At(i)
		m[k] = v
	}
	return m
}

func (t Tags) lookupString(i int) string {
	if i < 0 || i >= len(t.strings) {
		return ""
	}
	return t.strings[i]
}

// WayTags returns the tags of a way in this block.
func (b *RawBlock) WayTags(w *OSMPBF.Way) Tags {
	return Tags{strings: b.Strings, keys: w.GetKeys(), vals: w.GetVals()}
}

// RelationTags returns the tags of a relation in this block.
func (b *RawBlock) RelationTags(r *OSMPBF.Relation) Tags {
	return Tags{strings: b.Strings, keys: r.GetKeys(), vals: r.GetVals()}
}

// EachNodeTags calls fn with the tags of every node in group i, dense nodes
// first, without decoding ids or coordinates. Iteration stops when fn
// returns false.
func (b *RawBlock) EachNodeTags(i int, fn func(n int, tags Tags) bool) {
	g := b.Groups[i]
	n := 0
	if dense := g.GetDense(); dense != nil {
		count := len(dense.GetId())
		kv := dense.GetKeysVals()
		pos := 0
		for ; n < count; n++ {
			var tags Tags
			if pos < len(kv) {
				start := pos
				for pos+1 < len(kv) && kv[pos] != 0 {
					pos += 2
				}
				tags = Tags{strings: b.Strings, kv: kv[start:pos]}
				pos++ // terminator
			}
			if !fn(n, tags) {
				return
			}
		}
	}
	for _, node := range g.GetNodes() {
		if !fn(n, Tags{strings: b.Strings, keys: node.GetKeys(), vals: node.GetVals()}) {
			return
		}
		n++
	}
}

// NodeGroup is a fully decoded node group: absolute ids, coordinates and
// per-node tags, searchable by id.
type NodeGroup struct {
	ids    []int64
	coords []orb.Point
	tags   []Tags
	index  idIndex
}

// Len returns the number of nodes in the group.
func (g *NodeGroup) Len() int { return len(g.ids) }

// ID returns the absolute id of node i.
func (g *NodeGroup) ID(i int) int64 { return g.ids[i] }

// Coord returns the lon/lat of node i.
func (g *NodeGroup) Coord(i int) orb.Point { return g.coords[i] }

// Tags returns the tags of node i, empty for untagged nodes.
func (g *NodeGroup) Tags(i int) Tags { return g.tags[i] }

// Find returns the position of node id in the group. Ids are matched
// exactly, so a node missing from the group reports false even when id
// lies within the group's range.
func (g *NodeGroup) Find(id int64) (int, bool) { return g.index.find(id) }

// NodeGroup decodes group i once and caches the result on the block.
// It returns nil when group i does not hold nodes.
func (b *RawBlock) NodeGroup(i int) *NodeGroup {
	if kind, ok := b.GroupKind(i); !ok || kind != Node {
		return nil
	}
	b.once[i].Do(func() {
		b.nodes[i] = b.decodeNodes(i)
	})
	return b.nodes[i]
}

func (b *RawBlock) decodeNodes(i int) *NodeGroup {
	g := b.Groups[i]
	dense := g.GetDense()
	total := len(dense.GetId()) + len(g.GetNodes())
	ng := &NodeGroup{
		ids:    make([]int64, 0, total),
		coords: make([]orb.Point, 0, total),
		tags:   make([]Tags, 0, total),
	}

	if dense != nil {
		lats, lons := dense.GetLat(), dense.GetLon()
		var id, lat, lon int64
		for j, d := range dense.GetId() {
			id += d
			if j < len(lats) {
				lat += lats[j]
			}
			if j < len(lons) {
				lon += lons[j]
			}
			ng.ids = append(ng.ids, id)
			ng.coords = append(ng.coords, b.Coord(lat, lon))
		}
	}
	for _, n := range g.GetNodes() {
		ng.ids = append(ng.ids, n.GetId())
		ng.coords = append(ng.coords, b.Coord(n.GetLat(), n.GetLon()))
	}
	b.EachNodeTags(i, func(_ int, tags Tags) bool {
		ng.tags = append(ng.tags, tags)
		return true
	})
	for len(ng.tags) < len(ng.ids) {
		ng.tags = append(ng.tags, Tags{})
	}

	ng.index = newIDIndex(ng.ids)
	return ng
}

// FindWay returns the way with the given id from group i.
func (b *RawBlock) FindWay(i int, id int64) (*OSMPBF.Way, bool) {
	if kind, ok := b.GroupKind(i); !ok || kind != Way {
		return nil, false
	}
	ways := b.Groups[i].GetWays()
	b.once[i].Do(func() {
		ids := make([]int64, len(ways))
		for j, w := range ways {
			ids[j] = w.GetId()
		}
		b.ids[i] = newIDIndex(ids)
	})
	j, ok := b.ids[i].find(id)
	if !ok {
		return nil, false
	}
	return ways[j], true
}

// FindRelation returns the relation with the given id from group i.
func (b *RawBlock) FindRelation(i int, id int64) (*OSMPBF.Relation, bool) {
	if kind, ok := b.GroupKind(i); !ok || kind != Relation {
		return nil, false
	}
	rels := b.Groups[i].GetRelations()
	b.once[i].Do(func() {
		ids := make([]int64, len(rels))
		for j, r := range rels {
			ids[j] = r.GetId()
		}
		b.ids[i] = newIDIndex(ids)
	})
	j, ok := b.ids[i].find(id)
	if !ok {
		return nil, false
	}
	return rels[j], true
}

// WayRefs decodes the delta-coded node references of a way.
func WayRefs(w *OSMPBF.Way) []int64 {
	deltas := w.GetRefs()
	refs := make([]int64, len(deltas))
	var id int64
	for i, d := range deltas {
		id += d
		refs[i] = id
	}
	return refs
}

// Member is one decoded relation member.
type Member struct {
	ID   int64
	Kind EntityKind
	Role string
}

// Members decodes the delta-coded member list of a relation.
func (b *RawBlock) Members(r *OSMPBF.Relation) []Member {
	memids := r.GetMemids()
	types := r.GetTypes()
	roles := r.GetRolesSid()

	out := make([]Member, len(memids))
	var id int64
	for i, d := range memids {
		id += d
		m := Member{ID: id, Kind: Node}
		if i < len(types) {
			switch types[i] {
			case OSMPBF.Relation_WAY:
				m.Kind = Way
			case OSMPBF.Relation_RELATION:
				m.Kind = Relation
			}
		}
		if i < len(roles) {
			m.Role = b.str(int(roles[i]))
		}
		out[i] = m
	}
	return out
}

// idIndex finds positions by id in an id array that is usually, but not
// necessarily, ascending.
type idIndex struct {
	ids   []int64
	order []int32 // nil when ids is ascending
}

func newIDIndex(ids []int64) idIndex {
	if slices.IsSorted(ids) {
		return idIndex{ids: ids}
	}
	order := make([]int32, len(ids))
	for i := range order {
		order[i] = int32(i)
	}
	sort.Slice(order, func(a, b int) bool { return ids[order[a]] < ids[order[b]] })
	return idIndex{ids: ids, order: order}
}

func (x idIndex) find(id int64) (int, bool) {
	if x.order == nil {
		return slices.BinarySearch(x.ids, id)
	}
	i := sort.Search(len(x.order), func(j int) bool { return x.ids[x.order[j]] >= id })
	if i < len(x.order) && x.ids[x.order[i]] == id {
		return int(x.order[i]), true
	}
	return -1, false
}
