package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by all commands. Values come from the
// YAML file named by --config and are overridden by explicitly set flags.
type Config struct {
	// Backend is one of memory, bolt or dynamodb.
	Backend string `yaml:"backend"`
	// Path is the bolt database file.
	Path string `yaml:"path"`
	// Table is the DynamoDB table holding log objects.
	Table string `yaml:"table"`
	// Region overrides the AWS region.
	Region string `yaml:"region"`
	// Endpoint points AWS or MinIO clients at a custom endpoint.
	Endpoint string `yaml:"endpoint"`
	// Compression is the entry compression of persistent backends.
	Compression string `yaml:"compression"`
	// Projections locates projection blobs: mem://, a directory,
	// s3://bucket/prefix or minio://bucket/prefix.
	Projections string `yaml:"projections"`
	// CommitTable, if set, commits S3 projections through DynamoDB.
	CommitTable string `yaml:"commit_table"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`
	// CacheSize is the entry cache capacity in bytes.
	CacheSize int64 `yaml:"cache_size"`
	// CacheMemoryLimit caps the bytes cached by all logs a command opens.
	// Zero leaves only the per-log CacheSize.
	CacheMemoryLimit int64 `yaml:"cache_memory_limit"`
}

// DefaultConfig returns the settings used when neither file nor flags say
// otherwise.
func DefaultConfig() Config {
	return Config{
		Backend:     "bolt",
		Path:        "zlog.db",
		Projections: "zlog-projections",
		Compression: "none",
		LogLevel:    "warn",
		LogFormat:   "text",
		CacheSize:   64 << 20,
	}
}

// LoadConfig reads a YAML config on top of the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Backend {
	case "memory", "bolt", "dynamodb":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == "bolt" && c.Path == "" {
		return errors.New("bolt backend needs a path")
	}
	if c.Backend == "dynamodb" && c.Table == "" {
		return errors.New("dynamodb backend needs a table")
	}
	if c.Projections == "" {
		return errors.New("projections location is empty")
	}
	if c.CacheMemoryLimit < 0 {
		return fmt.Errorf("negative cache memory limit %d", c.CacheMemoryLimit)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return lvl, nil
}

// registerFlags adds the persistent flags.
func registerFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("config", "", "YAML config file")
	fs.String("backend", d.Backend, "storage backend: memory, bolt or dynamodb")
	fs.String("path", d.Path, "bolt database file")
	fs.String("table", "", "DynamoDB table for log objects")
	fs.String("region", "", "AWS region")
	fs.String("endpoint", "", "custom AWS or MinIO endpoint")
	fs.String("compression", d.Compression, "entry compression: none, lz4 or zstd")
	fs.String("projections", d.Projections, "projection store: mem://, a directory, s3://bucket/prefix or minio://bucket/prefix")
	fs.String("commit-table", "", "DynamoDB table committing S3 projections")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn or error")
	fs.String("log-format", d.LogFormat, "log format: text or json")
	fs.Int64("cache-size", d.CacheSize, "entry cache size in bytes (0 disables)")
	fs.Int64("cache-memory-limit", d.CacheMemoryLimit, "bytes cached across all opened logs (0 is unbounded)")
}

// resolveConfig loads --config and applies the flags the user set.
func resolveConfig(fs *pflag.FlagSet) (Config, error) {
	path, _ := fs.GetString("config")
	cfg, err := LoadConfig(path)
	if err != nil {
		return Config{}, err
	}

	strs := map[string]*string{
		"backend":      &cfg.Backend,
		"path":         &cfg.Path,
		"table":        &cfg.Table,
		"region":       &cfg.Region,
		"endpoint":     &cfg.Endpoint,
		"compression":  &cfg.Compression,
		"projections":  &cfg.Projections,
		"commit-table": &cfg.CommitTable,
		"log-level":    &cfg.LogLevel,
		"log-format":   &cfg.LogFormat,
	}
	for name, dst := range strs {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	if fs.Changed("cache-size") {
		cfg.CacheSize, _ = fs.GetInt64("cache-size")
	}
	if fs.Changed("cache-memory-limit") {
		cfg.CacheMemoryLimit, _ = fs.GetInt64("cache-memory-limit")
	}
	// An in-memory log keeps its projections in memory too unless told
	// otherwise.
	if cfg.Backend == "memory" && !fs.Changed("projections") && cfg.Projections == DefaultConfig().Projections {
		cfg.Projections = "mem://"
	}
	return cfg, cfg.Validate()
}
