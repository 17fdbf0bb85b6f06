package workerrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "github.com/rzbill/feedline/internal/config"
	"github.com/rzbill/feedline/internal/runtime"
	logpkg "github.com/rzbill/feedline/pkg/log"
)

// Options carries the worker invocation flags.
type Options struct {
	ConfigPath string
	DataDir    string
	Fsync      string
	Logger     logpkg.Logger
}

// Run starts the fan-out worker pool and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// layer a local signal context so direct callers get clean shutdown too
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := cfgpkg.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	cfgpkg.FromEnv(&cfg)
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Fsync != "" {
		cfg.Fsync = opts.Fsync
	}

	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}

	rt, err := runtime.Open(sctx, runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting fanout worker",
		logpkg.F("workers", cfg.Worker.Workers),
		logpkg.F("queue", runtime.FanoutQueue),
		logpkg.F("data_dir", cfg.DataDir))

	if err := rt.NewRunner().Run(sctx); err != nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
