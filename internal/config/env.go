package config

import (
	"os"
	"strconv"
)

// FromEnv overlays FEEDLINE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FEEDLINE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FEEDLINE_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("FEEDLINE_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("FEEDLINE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if n, ok := envInt("FEEDLINE_CAPACITY_LIMIT"); ok {
		cfg.Feeds.CapacityLimit = n
	}
	if n, ok := envInt("FEEDLINE_PAGE_SIZE"); ok {
		cfg.Feeds.PageSize = n
	}
	if n, ok := envInt("FEEDLINE_BATCH_WIDTH"); ok {
		cfg.Feeds.BatchWidth = n
	}
	if n, ok := envInt64("FEEDLINE_CACHE_TTL_MS"); ok {
		cfg.Feeds.CacheTTLMs = n
	}
	if n, ok := envInt("FEEDLINE_WORKERS"); ok {
		cfg.Worker.Workers = n
	}
	if n, ok := envInt64("FEEDLINE_LEASE_MS"); ok {
		cfg.Worker.LeaseMs = n
	}
	if n, ok := envInt("FEEDLINE_MAX_DELIVERIES"); ok {
		cfg.Worker.MaxDeliveries = n
	}
	if n, ok := envInt64("FEEDLINE_RETRY_BACKOFF_MS"); ok {
		cfg.Worker.RetryBackoffMs = n
	}
	if n, ok := envInt64("FEEDLINE_POLL_MS"); ok {
		cfg.Worker.PollMs = n
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
