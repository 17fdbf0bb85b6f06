package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DataDir is the root directory for local state (pebble store, queue).
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// Fsync is the pebble WAL sync policy: always|interval|never.
	Fsync string `json:"fsync" yaml:"fsync"`

	// PostgresDSN enables the relational feed backend when non-empty.
	PostgresDSN string `json:"postgresDSN" yaml:"postgresDSN"`
	// RedisAddr enables the Redis cache backend when non-empty; the in-memory
	// backend is used otherwise.
	RedisAddr string `json:"redisAddr" yaml:"redisAddr"`

	Feeds  FeedDefaults  `json:"feeds" yaml:"feeds"`
	Worker WorkerDefaults `json:"worker" yaml:"worker"`
}

// FeedDefaults captures the feed-serving tunables.
type FeedDefaults struct {
	// CapacityLimit bounds the number of entries cached per owner.
	CapacityLimit int `json:"capacityLimit" yaml:"capacityLimit"`
	// PageSize is the default page length; must not exceed CapacityLimit.
	PageSize int `json:"pageSize" yaml:"pageSize"`
	// BatchWidth is the number of followers per fan-out batch.
	BatchWidth int `json:"batchWidth" yaml:"batchWidth"`
	// CacheTTLMs is the TTL applied to cached lists and object snapshots.
	CacheTTLMs int64 `json:"cacheTTLMs" yaml:"cacheTTLMs"`
}

// WorkerDefaults captures the queue consumer tunables.
type WorkerDefaults struct {
	Workers        int   `json:"workers" yaml:"workers"`
	LeaseMs        int64 `json:"leaseMs" yaml:"leaseMs"`
	MaxDeliveries  int   `json:"maxDeliveries" yaml:"maxDeliveries"`
	RetryBackoffMs int64 `json:"retryBackoffMs" yaml:"retryBackoffMs"`
	PollMs         int64 `json:"pollMs" yaml:"pollMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Fsync: "always",
		Feeds: FeedDefaults{
			CapacityLimit: 200,
			PageSize:      20,
			BatchWidth:    1000,
			CacheTTLMs:    (24 * time.Hour).Milliseconds(),
		},
		Worker: WorkerDefaults{
			Workers:        4,
			LeaseMs:        30_000,
			MaxDeliveries:  5,
			RetryBackoffMs: 1_000,
			PollMs:         200,
		},
	}
}

// CacheTTL returns the cache TTL as a duration.
func (f FeedDefaults) CacheTTL() time.Duration {
	return time.Duration(f.CacheTTLMs) * time.Millisecond
}

// Validate reports configuration that cannot be served.
func (c Config) Validate() error {
	if c.Feeds.CapacityLimit <= 0 {
		return errors.New("config: feeds.capacityLimit must be positive")
	}
	if c.Feeds.PageSize <= 0 {
		return errors.New("config: feeds.pageSize must be positive")
	}
	if c.Feeds.PageSize > c.Feeds.CapacityLimit {
		return fmt.Errorf("config: feeds.pageSize %d exceeds capacityLimit %d", c.Feeds.PageSize, c.Feeds.CapacityLimit)
	}
	if c.Feeds.BatchWidth <= 0 {
		return errors.New("config: feeds.batchWidth must be positive")
	}
	if c.Worker.Workers <= 0 {
		return errors.New("config: worker.workers must be positive")
	}
	return nil
}

// Load reads configuration from a JSON or YAML file (by extension). If path is
// empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
