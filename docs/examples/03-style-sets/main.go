package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/beetlebugorg/osmgeo/pkg/osmgeo"
)

func main() {
	ctx := context.Background()

	styles, err := osmgeo.LoadStyles("styles.yaml")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Style sets: %v\n", styles.Names())

	opts := osmgeo.DefaultOptions()
	opts.Styles = styles
	opts.StyleSets = []string{"buildings", "food"}
	opts.Logger = osmgeo.NewTextLogger(slog.LevelDebug)

	conv, err := osmgeo.Open(ctx, "monaco-latest.osm.pbf", opts)
	if err != nil {
		log.Fatal(err)
	}
	defer conv.Close()

	sink := osmgeo.NewMemorySink()
	if err := conv.Run(ctx, sink); err != nil {
		log.Fatal(err)
	}

	var buildings, food int
	sink.Ascend(func(e osmgeo.Entity) bool {
		if _, ok := e.Tags["building"]; ok {
			buildings++
		} else {
			food++
		}
		return true
	})
	fmt.Printf("Buildings: %d\n", buildings)
	fmt.Printf("Food: %d\n", food)

	// Groups with no matching tags are skipped without building a single entity.
	fmt.Printf("Skipped groups: %d of %d\n", conv.Status().SkippedGroups, conv.Status().Groups)
}
