package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/beetlebugorg/osmgeo/pkg/osmgeo"
)

// Run this, press Ctrl-C, and run it again: the second run picks up at the
// first group the first run did not commit.
func main() {
	ctx := context.Background()

	conv, err := osmgeo.Open(ctx, "germany-latest.osm.pbf", osmgeo.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer conv.Close()

	if conv.Resumed() {
		fmt.Printf("Resuming at %s\n", conv.Status().Marker)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		conv.Stop()
	}()

	db, err := osmgeo.OpenSQLite(ctx, "germany.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	err = conv.Run(ctx, db)
	switch {
	case errors.Is(err, osmgeo.ErrStopped):
		fmt.Printf("Stopped at %s, run again to continue\n", conv.Status().Marker)
	case err != nil:
		log.Fatal(err)
	default:
		st := conv.Status()
		fmt.Printf("Done: %d committed, %d dropped, %d corrupt groups\n", st.Committed, st.Dropped, st.CorruptGroups)
	}

	runs, err := db.Runs(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range runs {
		fmt.Printf("run %s  %-9s %d committed\n", r.ID, r.State, r.Committed)
	}
}
