// Command osmgeo converts an OpenStreetMap PBF extract into geometries
// stored in SQLite.
//
// Usage:
//
//	osmgeo -in monaco-latest.osm.pbf -db monaco.db
//	osmgeo -config osmgeo.yaml -style-set buildings,roads -status-addr :8080
//
// The first SIGINT or SIGTERM stops the conversion after the group in
// flight is committed; running the same command again resumes it. A second
// signal aborts immediately.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"go.uber.org/dig"

	"github.com/beetlebugorg/osmgeo/internal/config"
	"github.com/beetlebugorg/osmgeo/internal/source"
	"github.com/beetlebugorg/osmgeo/pkg/osmgeo"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "osmgeo: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse("osmgeo", args, os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var current atomic.Pointer[osmgeo.Converter]
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
			}
			if conv := current.Swap(nil); conv != nil {
				conv.Stop()
				continue
			}
			cancel()
			return
		}
	}()

	container, err := newContainer(ctx, cfg)
	if err != nil {
		return err
	}
	return container.Invoke(func(conv *osmgeo.Converter, out *output, srv *statusServer, log *osmgeo.Logger) error {
		defer conv.Close()
		defer out.Close()
		current.Store(conv)

		log.InfoContext(ctx, "starting", "config", cfg.String())
		srv.Start(log)
		defer srv.Shutdown(context.WithoutCancel(ctx))

		err := conv.Run(ctx, out.sink)
		if errors.Is(err, osmgeo.ErrStopped) {
			log.InfoContext(ctx, "stopped, rerun to resume", "marker", conv.Status().Marker)
			return nil
		}
		return err
	})
}

func newContainer(ctx context.Context, cfg config.Config) (*dig.Container, error) {
	c := dig.New()
	constructors := []any{
		func() context.Context { return ctx },
		func() config.Config { return cfg },
		newLogger,
		newSource,
		newOptions,
		newConverter,
		newOutput,
		newStatusServer,
	}
	for _, fn := range constructors {
		if err := c.Provide(fn); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func newLogger(cfg config.Config) (*osmgeo.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if cfg.Log.Format == "json" {
		return osmgeo.NewJSONLogger(level), nil
	}
	return osmgeo.NewTextLogger(level), nil
}

func newSource(ctx context.Context, cfg config.Config) (source.Source, error) {
	if cfg.Input != "" {
		return source.OpenFile(cfg.Input)
	}
	client, err := source.NewMinioClient(source.MinioConfig{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Region:    cfg.S3.Region,
		Secure:    cfg.S3.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return source.OpenMinio(ctx, client, cfg.S3.Bucket, cfg.S3.Key)
}

func newOptions(cfg config.Config, log *osmgeo.Logger) (osmgeo.Options, error) {
	opts := osmgeo.DefaultOptions()
	opts.Logger = log

	bound, err := cfg.Bound()
	if err != nil {
		return opts, err
	}
	opts.Bounds = bound
	opts.TargetRelation = cfg.Relation

	if cfg.Styles != "" {
		if opts.Styles, err = osmgeo.LoadStyles(cfg.Styles); err != nil {
			return opts, err
		}
	}
	opts.StyleSets = cfg.StyleSets

	opts.Workers = cfg.Workers
	opts.IndexWorkers = cfg.IndexWorkers
	opts.MemoryThreshold = cfg.Memory.Threshold
	opts.MemoryInterval = cfg.Memory.Interval
	opts.EvictFraction = cfg.Memory.EvictFraction
	if cfg.Orientation == "cw" {
		opts.Orientation = osmgeo.ShellsCW
	}

	opts.SideDir = cfg.SideDir
	if opts.SideDir == "" && cfg.Input == "" {
		// Remote inputs keep side files in the user cache directory.
		dir, err := os.UserCacheDir()
		if err != nil {
			return opts, fmt.Errorf("side file directory: %w", err)
		}
		opts.SideDir = filepath.Join(dir, "osmgeo", cfg.S3.Bucket)
		if err := os.MkdirAll(opts.SideDir, 0o755); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func newConverter(ctx context.Context, src source.Source, opts osmgeo.Options) (*osmgeo.Converter, error) {
	conv, err := osmgeo.OpenSource(ctx, src, opts)
	if err != nil {
		src.Close()
		return nil, err
	}
	return conv, nil
}

// output is the configured sink and its cleanup.
type output struct {
	sink  osmgeo.Sink
	close func() error
}

func newOutput(ctx context.Context, cfg config.Config, log *osmgeo.Logger) (*output, error) {
	if cfg.Sink == "memory" {
		mem := osmgeo.NewMemorySink()
		return &output{sink: mem, close: func() error {
			log.InfoContext(ctx, "memory sink discarded", "entities", mem.Len())
			return nil
		}}, nil
	}
	db, err := osmgeo.OpenSQLite(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return &output{sink: db, close: db.Close}, nil
}

func (o *output) Close() error {
	return o.close()
}
