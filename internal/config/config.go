package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	SourceKindCatalog = "catalog"
	SourceKindRemote  = "remote"

	envPrefix = "STICKERDL_"
)

type SourceConfig struct {
	Kind         string        `yaml:"kind"`
	CatalogDir   string        `yaml:"catalog_dir"`
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	DescFileName string        `yaml:"desc_filename"`
	SkipFiles    []string      `yaml:"skip_files"`
}

type FetcherConfig struct {
	Retries     uint64        `yaml:"retries"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxItemSize int64         `yaml:"max_item_size"`
}

type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

type SinkConfig struct {
	OutDir        string        `yaml:"out_dir"`
	LinkTTL       time.Duration `yaml:"link_ttl"`
	ShareTemplate string        `yaml:"share_template"` // Built-in share page when empty
	PackTemplate  string        `yaml:"pack_template"`  // Built-in pack page when empty
}

// DefaultsConfig holds the user preferences applied when a request leaves an option unset.
type DefaultsConfig struct {
	Format         string `yaml:"format"`
	RetainOriginal bool   `yaml:"retain_original"`
}

type Config struct {
	LogLevel string         `yaml:"log_level"`
	Listen   string         `yaml:"listen"`
	URL      string         `yaml:"url"`
	RedisURL string         `yaml:"redis_url"`
	Source   SourceConfig   `yaml:"source"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sink     SinkConfig     `yaml:"sink"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

func (c *Config) SetDefaults() {
	c.LogLevel = LogLevelInfo
	c.Listen = ":8080"
	c.URL = "http://localhost:8080"
	c.RedisURL = "redis://localhost:6379/0"

	c.Source = SourceConfig{
		Kind:         SourceKindCatalog,
		CatalogDir:   "./packs",
		Timeout:      10 * time.Second,
		DescFileName: "pack.md",
	}

	c.Fetcher = FetcherConfig{
		Retries:     3,
		Timeout:     15 * time.Second,
		MaxItemSize: 8 << 20,
	}

	c.Pipeline.Workers = 4

	c.Sink = SinkConfig{
		OutDir:  "./downloads",
		LinkTTL: 15 * time.Minute,
	}

	c.Defaults = DefaultsConfig{
		Format: string(entity.FormatWebP),
	}
}

// DownloadOptions returns the configured preferences as options for one run.
func (c *Config) DownloadOptions() entity.DownloadOptions {
	opts := entity.DefaultDownloadOptions()

	if f, err := entity.ParseFormat(c.Defaults.Format); err == nil {
		opts.OutputFormat = f
	}
	opts.RetainOriginal = c.Defaults.RetainOriginal

	return opts
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("unknown log level: %s", c.LogLevel)
	}

	switch c.Source.Kind {
	case SourceKindCatalog:
		if c.Source.CatalogDir == "" {
			return fmt.Errorf("source.catalog_dir must be set")
		}
	case SourceKindRemote:
		if c.Source.URL == "" {
			return fmt.Errorf("source.url must be set")
		}
	default:
		return fmt.Errorf("unknown source kind: %s", c.Source.Kind)
	}

	if _, err := entity.ParseFormat(c.Defaults.Format); err != nil {
		return fmt.Errorf("defaults.format: %w", err)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be positive")
	}

	if c.Sink.LinkTTL <= 0 {
		return fmt.Errorf("sink.link_ttl must be positive")
	}

	if c.Source.Timeout < 0 {
		return fmt.Errorf("source.timeout must not be negative")
	}

	if c.Fetcher.Timeout < 0 {
		return fmt.Errorf("fetcher.timeout must not be negative")
	}

	return nil
}

// Load reads the config file (a missing file keeps the defaults), then applies
// STICKERDL_* variables from the environment or a .env file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			*dst = v
		}
	}

	set("LOG_LEVEL", &c.LogLevel)
	set("LISTEN", &c.Listen)
	set("URL", &c.URL)
	set("REDIS_URL", &c.RedisURL)
	set("SOURCE_KIND", &c.Source.Kind)
	set("SOURCE_URL", &c.Source.URL)
	set("CATALOG_DIR", &c.Source.CatalogDir)
	set("OUT_DIR", &c.Sink.OutDir)
	set("DEFAULT_FORMAT", &c.Defaults.Format)
}
