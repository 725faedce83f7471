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

	opts := osmgeo.DefaultOptions()
	// Monte Carlo only. Ways and relations are kept when any of their
	// coordinates falls inside.
	opts.Bounds = orb.Bound{
		Min: orb.Point{7.4200, 43.7350},
		Max: orb.Point{7.4350, 43.7450},
	}

	conv, err := osmgeo.Open(ctx, "monaco-latest.osm.pbf", opts)
	if err != nil {
		log.Fatal(err)
	}
	defer conv.Close()

	db, err := osmgeo.OpenSQLite(ctx, "monte-carlo.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := conv.Run(ctx, db); err != nil {
		log.Fatal(err)
	}

	n, err := db.Count(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Entities in bounds: %d\n", n)
}
