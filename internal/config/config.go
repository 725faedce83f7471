// Package config loads the osmgeo command configuration. Values come from
// an optional YAML file, then OSMGEO_* environment variables (optionally
// read from a .env file), then command-line flags that were set explicitly.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// Config is the complete command configuration.
type Config struct {
	Input string   `yaml:"input"`
	S3    S3Config `yaml:"s3"`

	Sink     string `yaml:"sink"` // sqlite or memory
	Database string `yaml:"database"`

	Bounds    string   `yaml:"bounds"` // minLon,minLat,maxLon,maxLat
	Relation  int64    `yaml:"relation"`
	Styles    string   `yaml:"styles"`
	StyleSets []string `yaml:"style_sets"`

	Workers      int    `yaml:"workers"`
	IndexWorkers int    `yaml:"index_workers"`
	SideDir      string `yaml:"side_dir"`
	Orientation  string `yaml:"orientation"` // ccw or cw

	Memory     MemoryConfig `yaml:"memory"`
	StatusAddr string       `yaml:"status_addr"`
	Log        LogConfig    `yaml:"log"`
}

// S3Config locates an input object in S3-compatible storage.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
	Key       string `yaml:"key"`
}

// MemoryConfig tunes the memory monitor.
type MemoryConfig struct {
	Threshold     float64       `yaml:"threshold"`
	Interval      time.Duration `yaml:"interval"`
	EvictFraction float64       `yaml:"evict_fraction"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Format string `yaml:"format"` // text or json
	Level  string `yaml:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Sink:        "sqlite",
		Database:    "osmgeo.db",
		Orientation: "ccw",
		Memory: MemoryConfig{
			Threshold:     0.8,
			Interval:      time.Second,
			EvictFraction: 0.5,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads the YAML file at path, if any, and applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	str("OSMGEO_INPUT", &c.Input)
	str("OSMGEO_SINK", &c.Sink)
	str("OSMGEO_DB", &c.Database)
	str("OSMGEO_BOUNDS", &c.Bounds)
	str("OSMGEO_STYLES", &c.Styles)
	str("OSMGEO_SIDE_DIR", &c.SideDir)
	str("OSMGEO_ORIENTATION", &c.Orientation)
	str("OSMGEO_STATUS_ADDR", &c.StatusAddr)
	str("OSMGEO_LOG_FORMAT", &c.Log.Format)
	str("OSMGEO_LOG_LEVEL", &c.Log.Level)
	str("OSMGEO_S3_ENDPOINT", &c.S3.Endpoint)
	str("OSMGEO_S3_ACCESS_KEY", &c.S3.AccessKey)
	str("OSMGEO_S3_SECRET_KEY", &c.S3.SecretKey)
	str("OSMGEO_S3_REGION", &c.S3.Region)
	str("OSMGEO_S3_BUCKET", &c.S3.Bucket)
	str("OSMGEO_S3_KEY", &c.S3.Key)

	if v, ok := lookup("OSMGEO_STYLE_SETS"); ok {
		c.StyleSets = splitList(v)
	}
	if v, ok := lookup("OSMGEO_RELATION"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("OSMGEO_RELATION: %w", err)
		}
		c.Relation = id
	}
	if v, ok := lookup("OSMGEO_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OSMGEO_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v, ok := lookup("OSMGEO_S3_USE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OSMGEO_S3_USE_SSL: %w", err)
		}
		c.S3.UseSSL = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Sink == "" {
		c.Sink = d.Sink
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.Orientation == "" {
		c.Orientation = d.Orientation
	}
	if c.Memory.Interval <= 0 {
		c.Memory.Interval = d.Memory.Interval
	}
	if c.Memory.EvictFraction <= 0 {
		c.Memory.EvictFraction = d.Memory.EvictFraction
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Validate checks that the configuration can run.
func (c Config) Validate() error {
	hasS3 := c.S3.Bucket != "" || c.S3.Key != ""
	switch {
	case c.Input == "" && !hasS3:
		return errors.New("config: no input: set input or s3 bucket and key")
	case c.Input != "" && hasS3:
		return errors.New("config: input and s3 object are mutually exclusive")
	case hasS3 && (c.S3.Bucket == "" || c.S3.Key == "" || c.S3.Endpoint == ""):
		return errors.New("config: s3 input needs endpoint, bucket and key")
	}
	switch c.Sink {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown sink %q", c.Sink)
	}
	switch c.Orientation {
	case "ccw", "cw":
	default:
		return fmt.Errorf("config: unknown orientation %q", c.Orientation)
	}
	if len(c.StyleSets) > 0 && c.Styles == "" {
		return errors.New("config: style sets need a styles file")
	}
	if c.Memory.Threshold < 0 || c.Memory.Threshold > 1 {
		return fmt.Errorf("config: memory threshold %v outside [0,1]", c.Memory.Threshold)
	}
	if _, err := c.Bound(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Bound parses Bounds. An empty string is the zero bound.
func (c Config) Bound() (orb.Bound, error) {
	if c.Bounds == "" {
		return orb.Bound{}, nil
	}
	return ParseBounds(c.Bounds)
}

// ParseBounds parses "minLon,minLat,maxLon,maxLat".
func ParseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("config: bounds %q: want minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("config: bounds %q: %w", s, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return orb.Bound{}, fmt.Errorf("config: bounds %q: min exceeds max", s)
	}
	if b.Min[0] < -180 || b.Max[0] > 180 || b.Min[1] < -90 || b.Max[1] > 90 {
		return orb.Bound{}, fmt.Errorf("config: bounds %q: outside WGS84", s)
	}
	return b, nil
}

// Level parses Log.Level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return l, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
