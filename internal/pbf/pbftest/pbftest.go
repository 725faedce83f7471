// Package pbftest encodes small OSM PBF files for tests.
package pbftest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/klauspost/compress/zlib"
	"github.com/qedus/osmpbf/OSMPBF"
	"google.golang.org/protobuf/proto"
)

// Node is a node to encode. Coordinates are degrees.
type Node struct {
	ID       int64
	Lat, Lon float64
	Tags     map[string]string
}

// Way is a way to encode.
type Way struct {
	ID   int64
	Refs []int64
	Tags map[string]string
}

// Member is a relation member. Type is "node", "way" or "relation".
type Member struct {
	Type string
	ID   int64
	Role string
}

// Relation is a relation to encode.
type Relation struct {
	ID      int64
	Members []Member
	Tags    map[string]string
}

// Builder accumulates blocks. Block 0 is always the header; each call that
// adds a block appends one data block.
type Builder struct {
	blocks [][]byte
	raw    bool
	err    error

	requiredFeatures []string
}

// New returns a builder that zlib-compresses data blocks.
func New() *Builder {
	return &Builder{requiredFeatures: []string{"OsmSchema-V0.6", "DenseNodes"}}
}

// Uncompressed stores subsequent data blocks as raw blobs.
func (b *Builder) Uncompressed() *Builder {
	b.raw = true
	return b
}

// RequireFeatures replaces the header's required features.
func (b *Builder) RequireFeatures(f ...string) *Builder {
	b.requiredFeatures = f
	return b
}

// DenseNodes appends a block holding one dense node group per argument.
func (b *Builder) DenseNodes(groups ...[]Node) *Builder {
	st := newStrings()
	pb := newBlock()
	for _, nodes := range groups {
		dense := &OSMPBF.DenseNodes{}
		var lastID, lastLat, lastLon int64
		tagged := false
		for _, n := range nodes {
			if len(n.Tags) > 0 {
				tagged = true
			}
		}
		for _, n := range nodes {
			lat, lon := raw(n.Lat), raw(n.Lon)
			dense.Id = append(dense.Id, n.ID-lastID)
			dense.Lat = append(dense.Lat, lat-lastLat)
			dense.Lon = append(dense.Lon, lon-lastLon)
			lastID, lastLat, lastLon = n.ID, lat, lon
			if tagged {
				for _, k := range sortedKeys(n.Tags) {
					dense.KeysVals = append(dense.KeysVals, int32(st.index(k)), int32(st.index(n.Tags[k])))
				}
				dense.KeysVals = append(dense.KeysVals, 0)
			}
		}
		pb.Primitivegroup = append(pb.Primitivegroup, &OSMPBF.PrimitiveGroup{Dense: dense})
	}
	return b.appendBlock(pb, st)
}

// PlainNodes appends a block with a single group of non-dense nodes.
func (b *Builder) PlainNodes(nodes ...Node) *Builder {
	st := newStrings()
	pb := newBlock()
	g := &OSMPBF.PrimitiveGroup{}
	for _, n := range nodes {
		keys, vals := st.tags(n.Tags)
		g.Nodes = append(g.Nodes, &OSMPBF.Node{
			Id:   proto.Int64(n.ID),
			Lat:  proto.Int64(raw(n.Lat)),
			Lon:  proto.Int64(raw(n.Lon)),
			Keys: keys,
			Vals: vals,
		})
	}
	pb.Primitivegroup = append(pb.Primitivegroup, g)
	return b.appendBlock(pb, st)
}

// Ways appends a block holding one way group per argument.
func (b *Builder) Ways(groups ...[]Way) *Builder {
	st := newStrings()
	pb := newBlock()
	for _, ways := range groups {
		g := &OSMPBF.PrimitiveGroup{}
		for _, w := range ways {
			keys, vals := st.tags(w.Tags)
			var refs []int64
			var last int64
			for _, r := range w.Refs {
				refs = append(refs, r-last)
				last = r
			}
			g.Ways = append(g.Ways, &OSMPBF.Way{
				Id:   proto.Int64(w.ID),
				Keys: keys,
				Vals: vals,
				Refs: refs,
			})
		}
		pb.Primitivegroup = append(pb.Primitivegroup, g)
	}
	return b.appendBlock(pb, st)
}

// Relations appends a block holding one relation group per argument.
func (b *Builder) Relations(groups ...[]Relation) *Builder {
	st := newStrings()
	pb := newBlock()
	for _, rels := range groups {
		g := &OSMPBF.PrimitiveGroup{}
		for _, r := range rels {
			keys, vals := st.tags(r.Tags)
			rel := &OSMPBF.Relation{Id: proto.Int64(r.ID), Keys: keys, Vals: vals}
			var last int64
			for _, m := range r.Members {
				rel.Memids = append(rel.Memids, m.ID-last)
				last = m.ID
				rel.RolesSid = append(rel.RolesSid, int32(st.index(m.Role)))
				switch m.Type {
				case "way":
					rel.Types = append(rel.Types, OSMPBF.Relation_WAY)
				case "relation":
					rel.Types = append(rel.Types, OSMPBF.Relation_RELATION)
				default:
					rel.Types = append(rel.Types, OSMPBF.Relation_NODE)
				}
			}
			g.Relations = append(g.Relations, rel)
		}
		pb.Primitivegroup = append(pb.Primitivegroup, g)
	}
	return b.appendBlock(pb, st)
}

// Bytes returns the encoded file.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	hb := &OSMPBF.HeaderBlock{
		RequiredFeatures: b.requiredFeatures,
		Writingprogram:   proto.String("pbftest"),
		Bbox: &OSMPBF.HeaderBBox{
			Left:   proto.Int64(-180e9),
			Right:  proto.Int64(180e9),
			Top:    proto.Int64(90e9),
			Bottom: proto.Int64(-90e9),
		},
	}
	data, err := proto.Marshal(hb)
	if err != nil {
		return nil, err
	}
	header, err := frame("OSMHeader", data, true)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Write(header)
	for _, blk := range b.blocks {
		out.Write(blk)
	}
	return out.Bytes(), nil
}

// MustBytes is Bytes for tests that cannot fail.
func (b *Builder) MustBytes() []byte {
	data, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return data
}

func (b *Builder) appendBlock(pb *OSMPBF.PrimitiveBlock, st *stringTable) *Builder {
	if b.err != nil {
		return b
	}
	pb.Stringtable = &OSMPBF.StringTable{S: st.s}
	data, err := proto.Marshal(pb)
	if err != nil {
		b.err = fmt.Errorf("marshal primitive block: %w", err)
		return b
	}
	blk, err := frame("OSMData", data, b.raw)
	if err != nil {
		b.err = err
		return b
	}
	b.blocks = append(b.blocks, blk)
	return b
}

// Frame encodes one length-prefixed BlobHeader and Blob pair.
func Frame(blobType string, data []byte, uncompressed bool) ([]byte, error) {
	return frame(blobType, data, uncompressed)
}

func frame(blobType string, data []byte, uncompressed bool) ([]byte, error) {
	blob := &OSMPBF.Blob{RawSize: proto.Int32(int32(len(data)))}
	if uncompressed {
		blob.Data = &OSMPBF.Blob_Raw{Raw: data}
	} else {
		var zb bytes.Buffer
		w := zlib.NewWriter(&zb)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		blob.Data = &OSMPBF.Blob_ZlibData{ZlibData: zb.Bytes()}
	}
	encodedBlob, err := proto.Marshal(blob)
	if err != nil {
		return nil, err
	}
	hdr, err := proto.Marshal(&OSMPBF.BlobHeader{
		Type:     proto.String(blobType),
		Datasize: proto.Int32(int32(len(encodedBlob))),
	})
	if err != nil {
		return nil, err
	}

	out := make([]byte, 4, 4+len(hdr)+len(encodedBlob))
	binary.BigEndian.PutUint32(out, uint32(len(hdr)))
	out = append(out, hdr...)
	return append(out, encodedBlob...), nil
}

func newBlock() *OSMPBF.PrimitiveBlock {
	return &OSMPBF.PrimitiveBlock{
		Granularity: proto.Int32(100),
		LatOffset:   proto.Int64(0),
		LonOffset:   proto.Int64(0),
	}
}

// raw converts degrees to granularity-100 units.
func raw(deg float64) int64 {
	return int64(math.Round(deg * 1e7))
}

type stringTable struct {
	s   []string
	pos map[string]int
}

func newStrings() *stringTable {
	// Index 0 is reserved as the dense tag terminator.
	return &stringTable{s: []string{""}, pos: map[string]int{"": 0}}
}

func (t *stringTable) index(s string) int {
	if i, ok := t.pos[s]; ok {
		return i
	}
	t.pos[s] = len(t.s)
	t.s = append(t.s, s)
	return t.pos[s]
}

func (t *stringTable) tags(tags map[string]string) (keys, vals []uint32) {
	for _, k := range sortedKeys(tags) {
		keys = append(keys, uint32(t.index(k)))
		vals = append(vals, uint32(t.index(tags[k])))
	}
	return keys, vals
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
