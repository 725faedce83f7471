package main

import (
	"context"
	"fmt"
	"log"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/osmgeo/pkg/osmgeo"
)

func main() {
	ctx := context.Background()

	// Indexes the file and writes monaco-latest.osm.pbf.{blockinfo,indexinfo,progress}
	conv, err := osmgeo.Open(ctx, "monaco-latest.osm.pbf", osmgeo.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer conv.Close()

	sink := osmgeo.NewMemorySink()
	if err := conv.Run(ctx, sink); err != nil {
		log.Fatal(err)
	}

	counts := map[string]int{}
	sink.Ascend(func(e osmgeo.Entity) bool {
		counts[e.Geometry.GeoJSONType()]++
		return true
	})
	fmt.Printf("Entities: %d\n", sink.Len())
	for typ, n := range counts {
		fmt.Printf("  %-15s %d\n", typ, n)
	}

	st := conv.Status()
	fmt.Printf("Dropped: %d, cache decodes: %d\n", st.Dropped, st.Cache.Decodes)

	if e, ok := sink.Get(osmgeo.Relation, 1124039); ok {
		fmt.Printf("Monaco boundary: %v\n", e.Geometry.Bound())
		if _, ok := e.Geometry.(orb.MultiPolygon); ok {
			fmt.Println("  (multipolygon)")
		}
	}
}
