// Package config loads the engine configuration from YAML. Environment
// variables prefixed MATCHBOOK_ override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`

	Book struct {
		// IDs is "sequential" (o-/t- counters) or "random" (seeded uuids).
		IDs       string `yaml:"ids"`
		TapeLimit int    `yaml:"tape_limit"`
	} `yaml:"book"`

	Journal struct {
		Dir         string `yaml:"dir"`
		SegmentSize int64  `yaml:"segment_size"`
		Sync        bool   `yaml:"sync"`
	} `yaml:"journal"`

	Snapshot struct {
		Dir      string        `yaml:"dir"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"snapshot"`

	Outbox struct {
		Dir string `yaml:"dir"`
	} `yaml:"outbox"`

	Archive struct {
		Path string `yaml:"path"`
	} `yaml:"archive"`

	Kafka struct {
		Enabled       bool          `yaml:"enabled"`
		Brokers       []string      `yaml:"brokers"`
		EventsTopic   string        `yaml:"events_topic"`
		TradesTopic   string        `yaml:"trades_topic"`
		Buffer        int           `yaml:"buffer"`
		RelayInterval time.Duration `yaml:"relay_interval"`
		MaxRetries    uint32        `yaml:"max_retries"`
	} `yaml:"kafka"`

	Metrics struct {
		Textfile string        `yaml:"textfile"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"metrics"`
}

// Default is a working single-node setup under ./data with Kafka off.
func Default() *Config {
	var c Config
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	c.Book.IDs = "sequential"
	c.Journal.Dir = "data/journal"
	c.Journal.SegmentSize = 64 << 20
	c.Journal.Sync = true
	c.Snapshot.Dir = "data/snapshots"
	c.Snapshot.Interval = time.Minute
	c.Outbox.Dir = "data/outbox"
	c.Archive.Path = "data/trades.db"
	c.Kafka.Brokers = []string{"localhost:9092"}
	c.Kafka.EventsTopic = "matchbook.events"
	c.Kafka.TradesTopic = "matchbook.trades"
	c.Kafka.Buffer = 4096
	c.Kafka.RelayInterval = 250 * time.Millisecond
	c.Kafka.MaxRetries = 10
	c.Metrics.Interval = 15 * time.Second
	return &c
}

// Load reads path over the defaults, applies env overrides and validates.
// An empty path uses defaults and env only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Book.IDs {
	case "sequential", "random":
	default:
		errs = append(errs, fmt.Errorf("unknown id source %q", c.Book.IDs))
	}
	if c.Book.TapeLimit < 0 {
		errs = append(errs, errors.New("tape limit must not be negative"))
	}
	if c.Journal.Dir == "" {
		errs = append(errs, errors.New("journal dir is required"))
	}
	if c.Journal.SegmentSize <= 0 {
		errs = append(errs, errors.New("journal segment size must be positive"))
	}
	if c.Snapshot.Dir != "" && c.Snapshot.Interval <= 0 {
		errs = append(errs, errors.New("snapshot interval must be positive"))
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka enabled without brokers"))
		}
		if c.Kafka.EventsTopic == "" || c.Kafka.TradesTopic == "" {
			errs = append(errs, errors.New("kafka topics are required"))
		}
		if c.Outbox.Dir == "" {
			errs = append(errs, errors.New("trade relay needs an outbox dir"))
		}
	}
	if c.Metrics.Textfile != "" && c.Metrics.Interval <= 0 {
		errs = append(errs, errors.New("metrics interval must be positive"))
	}
	return errors.Join(errs...)
}

// RandomIDs reports whether the book issues uuid ids.
func (c *Config) RandomIDs() bool {
	return c.Book.IDs == "random"
}

func overrideWithEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("MATCHBOOK_" + key); ok {
			*dst = v
		}
	}
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)
	str("BOOK_IDS", &cfg.Book.IDs)
	str("JOURNAL_DIR", &cfg.Journal.Dir)
	str("SNAPSHOT_DIR", &cfg.Snapshot.Dir)
	str("OUTBOX_DIR", &cfg.Outbox.Dir)
	str("ARCHIVE_PATH", &cfg.Archive.Path)
	str("KAFKA_EVENTS_TOPIC", &cfg.Kafka.EventsTopic)
	str("KAFKA_TRADES_TOPIC", &cfg.Kafka.TradesTopic)
	str("METRICS_TEXTFILE", &cfg.Metrics.Textfile)

	if v, ok := os.LookupEnv("MATCHBOOK_KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("MATCHBOOK_KAFKA_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MATCHBOOK_KAFKA_ENABLED: %w", err)
		}
		cfg.Kafka.Enabled = b
	}
	if v, ok := os.LookupEnv("MATCHBOOK_SNAPSHOT_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MATCHBOOK_SNAPSHOT_INTERVAL: %w", err)
		}
		cfg.Snapshot.Interval = d
	}
	return nil
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
