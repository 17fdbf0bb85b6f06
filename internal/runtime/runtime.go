package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/feedline/internal/cache"
	cfgpkg "github.com/rzbill/feedline/internal/config"
	"github.com/rzbill/feedline/internal/fanout"
	"github.com/rzbill/feedline/internal/feed"
	"github.com/rzbill/feedline/internal/gate"
	"github.com/rzbill/feedline/internal/graph"
	"github.com/rzbill/feedline/internal/queue"
	"github.com/rzbill/feedline/internal/services/feeds"
	"github.com/rzbill/feedline/internal/services/posts"
	pebblestore "github.com/rzbill/feedline/internal/storage/pebble"
	"github.com/rzbill/feedline/pkg/log"
)

// FanoutQueue names the queue fan-out batches flow through.
const FanoutQueue = "fanout"

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
	// Graph overrides the follower source. Defaults to an empty in-memory
	// graph; deployments plug in their adapter here.
	Graph graph.FollowerSource
}

// Runtime owns every long-lived component for a single-node instance.
type Runtime struct {
	db     *pebblestore.DB
	row    *feed.RowStore
	redis  *cache.Redis
	config cfgpkg.Config
	logger log.Logger

	gates  *gate.Store
	queue  *queue.Queue
	graph  graph.FollowerSource
	feeds  *feeds.Service
	posts  *posts.Service
	engine *fanout.Engine
}

// Open builds the runtime from config: pebble always, Postgres and Redis
// only when configured, in-memory fallbacks otherwise.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewTestLogger()
	}

	fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return nil, err
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dataDir, Fsync: fsync})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{db: db, config: cfg, logger: logger}

	var backend cache.Backend
	if cfg.RedisAddr != "" {
		rt.redis = cache.NewRedis(cfg.RedisAddr)
		backend = rt.redis
		logger.Info("cache backend: redis", log.F("addr", cfg.RedisAddr))
	} else {
		backend = cache.NewMemory()
		logger.Info("cache backend: in-memory")
	}

	var row feed.Store
	if cfg.PostgresDSN != "" {
		rs, err := feed.NewRowStore(ctx, cfg.PostgresDSN)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		rt.row = rs
		row = rs
		logger.Info("row backend: postgres")
	}
	column := feed.NewColumnStore(db)

	rt.gates = gate.NewStore(db)
	rt.queue = queue.Open(db, FanoutQueue, queue.Options{
		LeaseMs:        cfg.Worker.LeaseMs,
		MaxDeliveries:  cfg.Worker.MaxDeliveries,
		RetryBackoffMs: cfg.Worker.RetryBackoffMs,
	}, logger)

	rt.graph = opts.Graph
	if rt.graph == nil {
		rt.graph = graph.NewMemory()
	}

	rt.feeds = feeds.NewWithLogger(rt.gates, row, column, backend, feeds.Options{
		CapacityLimit: cfg.Feeds.CapacityLimit,
		PageSize:      cfg.Feeds.PageSize,
		CacheTTL:      cfg.Feeds.CacheTTL(),
	}, logger)
	rt.posts = posts.New(backend, posts.NewCatalog(db), cfg.Feeds.CacheTTL(), logger)
	rt.engine = fanout.New(rt.feeds, rt.graph, rt.queue, cfg.Feeds.BatchWidth, logger)

	return rt, nil
}

// Close releases every owned resource.
func (r *Runtime) Close() error {
	var errs []error
	if r.row != nil {
		r.row.Close()
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckHealth verifies the local store and, when configured, the cache.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("runtime: db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	if err := it.Close(); err != nil {
		return err
	}
	if r.redis != nil {
		return r.redis.Ping(ctx)
	}
	return nil
}

// NewRunner builds a worker pool over the fan-out queue with the batch
// handler registered.
func (r *Runtime) NewRunner() *queue.Runner {
	runner := queue.NewRunner(r.queue, queue.RunnerOptions{
		Workers:      r.config.Worker.Workers,
		PollInterval: time.Duration(r.config.Worker.PollMs) * time.Millisecond,
	}, r.logger)
	r.engine.Register(runner)
	return runner
}

// Feeds returns the feed service.
func (r *Runtime) Feeds() *feeds.Service { return r.feeds }

// Posts returns the post/profile snapshot service.
func (r *Runtime) Posts() *posts.Service { return r.posts }

// Fanout returns the distribution engine.
func (r *Runtime) Fanout() *fanout.Engine { return r.engine }

// Gates returns the feature-flag store.
func (r *Runtime) Gates() *gate.Store { return r.gates }

// Queue returns the fan-out task queue.
func (r *Runtime) Queue() *queue.Queue { return r.queue }

// Graph returns the follower source.
func (r *Runtime) Graph() graph.FollowerSource { return r.graph }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// DB exposes the underlying store for administrative commands.
func (r *Runtime) DB() *pebblestore.DB { return r.db }
