package config

import (
	"flag"
	"io"
	"strconv"
	"strings"
)

// listFlag accumulates repeated or comma separated values.
type listFlag struct {
	values *[]string
}

func (l listFlag) String() string {
	if l.values == nil {
		return ""
	}
	return strings.Join(*l.values, ",")
}

func (l listFlag) Set(s string) error {
	*l.values = append(*l.values, splitList(s)...)
	return nil
}

// Parse reads -config from args, loads it with the environment, and then
// applies every flag set explicitly on the command line.
func Parse(name string, args []string, output io.Writer) (Config, error) {
	var (
		fs         = flag.NewFlagSet(name, flag.ContinueOnError)
		path       string
		f          Config
		styleSets  []string
		memThresh  float64
		useSSL     bool
		statusAddr string
	)
	fs.SetOutput(output)
	fs.StringVar(&path, "config", "", "YAML configuration file")
	fs.StringVar(&f.Input, "in", "", "input .osm.pbf file")
	fs.StringVar(&f.S3.Endpoint, "s3-endpoint", "", "S3-compatible endpoint host:port")
	fs.StringVar(&f.S3.Bucket, "s3-bucket", "", "input bucket")
	fs.StringVar(&f.S3.Key, "s3-key", "", "input object key")
	fs.BoolVar(&useSSL, "s3-ssl", false, "use TLS for the S3 endpoint")
	fs.StringVar(&f.Sink, "sink", "", "output sink: sqlite or memory")
	fs.StringVar(&f.Database, "db", "", "SQLite database path")
	fs.StringVar(&f.Bounds, "bounds", "", "restrict output to minLon,minLat,maxLon,maxLat")
	fs.Int64Var(&f.Relation, "relation", 0, "restrict output to the area of this relation id")
	fs.StringVar(&f.Styles, "styles", "", "YAML style-set file")
	fs.Var(listFlag{&styleSets}, "style-set", "style set to apply (repeatable, comma separated)")
	fs.IntVar(&f.Workers, "workers", 0, "concurrent entity builds per group (0 = GOMAXPROCS)")
	fs.IntVar(&f.IndexWorkers, "index-workers", 0, "concurrent block decodes while indexing (0 = GOMAXPROCS)")
	fs.StringVar(&f.SideDir, "side-dir", "", "directory for index and progress side files")
	fs.StringVar(&f.Orientation, "orientation", "", "shell winding: ccw or cw")
	fs.Float64Var(&memThresh, "memory-threshold", 0, "fraction of physical memory that triggers eviction (0 disables)")
	fs.StringVar(&statusAddr, "status-addr", "", "serve GET /status on this address")
	fs.StringVar(&f.Log.Format, "log-format", "", "log format: text or json")
	fs.StringVar(&f.Log.Level, "log-level", "", "log level: debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "in":
			cfg.Input = f.Input
		case "s3-endpoint":
			cfg.S3.Endpoint = f.S3.Endpoint
		case "s3-bucket":
			cfg.S3.Bucket = f.S3.Bucket
		case "s3-key":
			cfg.S3.Key = f.S3.Key
		case "s3-ssl":
			cfg.S3.UseSSL = useSSL
		case "sink":
			cfg.Sink = f.Sink
		case "db":
			cfg.Database = f.Database
		case "bounds":
			cfg.Bounds = f.Bounds
		case "relation":
			cfg.Relation = f.Relation
		case "styles":
			cfg.Styles = f.Styles
		case "style-set":
			cfg.StyleSets = styleSets
		case "workers":
			cfg.Workers = f.Workers
		case "index-workers":
			cfg.IndexWorkers = f.IndexWorkers
		case "side-dir":
			cfg.SideDir = f.SideDir
		case "orientation":
			cfg.Orientation = f.Orientation
		case "memory-threshold":
			cfg.Memory.Threshold = memThresh
		case "status-addr":
			cfg.StatusAddr = statusAddr
		case "log-format":
			cfg.Log.Format = f.Log.Format
		case "log-level":
			cfg.Log.Level = f.Log.Level
		}
	})
	if fs.NArg() > 0 && cfg.Input == "" {
		cfg.Input = fs.Arg(0)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// String renders the non-secret settings for logging.
func (c Config) String() string {
	var b strings.Builder
	b.WriteString("input=")
	if c.Input != "" {
		b.WriteString(c.Input)
	} else {
		b.WriteString("s3://" + c.S3.Bucket + "/" + c.S3.Key)
	}
	b.WriteString(" sink=" + c.Sink)
	if c.Sink == "sqlite" {
		b.WriteString(" db=" + c.Database)
	}
	if c.Bounds != "" {
		b.WriteString(" bounds=" + c.Bounds)
	}
	if c.Relation != 0 {
		b.WriteString(" relation=" + strconv.FormatInt(c.Relation, 10))
	}
	if len(c.StyleSets) > 0 {
		b.WriteString(" style_sets=" + strings.Join(c.StyleSets, ","))
	}
	return b.String()
}
