package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	workerrun "github.com/rzbill/feedline/internal/cmd/worker"
	cfgpkg "github.com/rzbill/feedline/internal/config"
	"github.com/rzbill/feedline/internal/feed"
	"github.com/rzbill/feedline/internal/runtime"
	"github.com/rzbill/feedline/internal/services/posts"
	logpkg "github.com/rzbill/feedline/pkg/log"
)

func newCLILogger() logpkg.Logger {
	level := os.Getenv("FEEDLINE_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if os.Getenv("FEEDLINE_LOG_FORMAT") == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	return logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
}

// loadConfig resolves config file, env overlay, and shared flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if fsync, _ := cmd.Flags().GetString("fsync"); fsync != "" {
		cfg.Fsync = fsync
	}
	return cfg, nil
}

func openRuntime(cmd *cobra.Command, logger logpkg.Logger) (*runtime.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return runtime.Open(cmd.Context(), runtime.Options{Config: cfg, Logger: logger})
}

func addSharedFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", os.Getenv("FEEDLINE_CONFIG"), "Config file (json or yaml)")
	cmd.Flags().String("data-dir", "", "Data directory (defaults to the OS application data directory)")
	cmd.Flags().String("fsync", "", "Pebble WAL sync: always|interval|never")
}

func main() {
	logger := newCLILogger()
	// pebble logs through the stdlib logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "feedline",
		Short: "Feedline CLI",
		Long:  "Feedline distributes posts into follower feeds. This CLI runs the worker and basic operations.",
	}

	// worker
	workerCmd := &cobra.Command{Use: "worker", Short: "Worker commands"}
	workerRunCmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the fan-out worker until interrupted",
		Aliases: []string{"start"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			fsync, _ := cmd.Flags().GetString("fsync")
			if err := workerrun.Run(cmd.Context(), workerrun.Options{
				ConfigPath: configPath,
				DataDir:    dataDir,
				Fsync:      fsync,
				Logger:     logger,
			}); err != nil {
				return fmt.Errorf("worker error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	addSharedFlags(workerRunCmd)
	workerCmd.AddCommand(workerRunCmd)

	workerDrainCmd := &cobra.Command{
		Use:   "drain",
		Short: "Process queued fan-out batches until the queue is empty, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.NewRunner().Drain(cmd.Context())
		},
	}
	addSharedFlags(workerDrainCmd)
	workerCmd.AddCommand(workerDrainCmd)
	rootCmd.AddCommand(workerCmd)

	// publish
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a post and fan it out",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			postID, _ := cmd.Flags().GetInt64("post")
			authorID, _ := cmd.Flags().GetInt64("author")
			body, _ := cmd.Flags().GetString("body")
			now := time.Now().UnixMilli()

			ctx := cmd.Context()
			if body != "" {
				// record snapshots so page --hydrate can render them
				catalog := posts.NewCatalog(rt.DB())
				if err := catalog.PutPost(ctx, posts.Post{ID: postID, AuthorID: authorID, Body: body, CreatedAtMs: now}); err != nil {
					return err
				}
				if _, err := catalog.Profile(ctx, authorID); errors.Is(err, posts.ErrNotFound) {
					username, _ := cmd.Flags().GetString("author-name")
					if username == "" {
						username = fmt.Sprintf("user-%d", authorID)
					}
					if err := catalog.PutProfile(ctx, posts.Profile{ID: authorID, Username: username, DisplayName: username}); err != nil {
						return err
					}
				}
			}
			summary, err := rt.Fanout().Distribute(ctx, postID, authorID, now)
			if err != nil {
				return err
			}
			fmt.Println(summary)
			return nil
		},
	}
	publishCmd.Flags().Int64("post", 0, "Post id")
	publishCmd.Flags().Int64("author", 0, "Author user id")
	publishCmd.Flags().String("body", "", "Post body to record in the catalog")
	publishCmd.Flags().String("author-name", "", "Author username to record if the profile is absent")
	_ = publishCmd.MarkFlagRequired("post")
	_ = publishCmd.MarkFlagRequired("author")
	addSharedFlags(publishCmd)
	rootCmd.AddCommand(publishCmd)

	// page
	pageCmd := &cobra.Command{
		Use:   "page",
		Short: "Read one page of a user's feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			owner, _ := cmd.Flags().GetInt64("owner")
			olderThan, _ := cmd.Flags().GetInt64("older-than")
			newerThan, _ := cmd.Flags().GetInt64("newer-than")

			bound := feed.NoBound()
			switch {
			case olderThan > 0 && newerThan > 0:
				return fmt.Errorf("--older-than and --newer-than are mutually exclusive")
			case olderThan > 0:
				bound = feed.Older(olderThan)
			case newerThan > 0:
				bound = feed.Newer(newerThan)
			}

			entries, hasNext, err := rt.Feeds().Page(cmd.Context(), owner, bound)
			if err != nil {
				return err
			}
			if hydrate, _ := cmd.Flags().GetBool("hydrate"); hydrate {
				items, err := rt.Posts().Hydrate(cmd.Context(), entries)
				if err != nil {
					return err
				}
				for _, it := range items {
					fmt.Printf("post=%d author=%s created_ms=%d body=%q\n",
						it.Post.ID, it.Author.Username, it.CreatedAtMs, it.Post.Body)
				}
			} else {
				for _, e := range entries {
					fmt.Printf("post=%d author=%d created_ms=%d\n", e.PostID, e.AuthorID, e.CreatedAtMs)
				}
			}
			fmt.Println("has_next_page:", hasNext)
			return nil
		},
	}
	pageCmd.Flags().Int64("owner", 0, "Feed owner user id")
	pageCmd.Flags().Int64("older-than", 0, "Return entries strictly older than this ms timestamp")
	pageCmd.Flags().Int64("newer-than", 0, "Return entries strictly newer than this ms timestamp")
	pageCmd.Flags().Bool("hydrate", false, "Resolve entries into post and author snapshots")
	_ = pageCmd.MarkFlagRequired("owner")
	addSharedFlags(pageCmd)
	rootCmd.AddCommand(pageCmd)

	// count
	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count feed entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			all, _ := cmd.Flags().GetBool("all")
			if all {
				n, err := rt.Feeds().CountAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			}
			owner, _ := cmd.Flags().GetInt64("owner")
			n, err := rt.Feeds().Count(cmd.Context(), owner)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	countCmd.Flags().Int64("owner", 0, "Feed owner user id")
	countCmd.Flags().Bool("all", false, "Count entries across all owners")
	addSharedFlags(countCmd)
	rootCmd.AddCommand(countCmd)

	// gate
	gateCmd := &cobra.Command{Use: "gate", Short: "Feature gate operations"}
	gateGetCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a gate's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			fmt.Println(rt.Gates().IsOn(cmd.Context(), args[0]))
			return nil
		},
	}
	addSharedFlags(gateGetCmd)
	gateSetCmd := &cobra.Command{
		Use:   "set <name> <on|off>",
		Short: "Set a gate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := strconv.ParseBool(normalizeSwitch(args[1]))
			if err != nil {
				return fmt.Errorf("invalid state %q; use on|off", args[1])
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Gates().Set(cmd.Context(), args[0], on); err != nil {
				return err
			}
			fmt.Printf("%s: %v\n", args[0], on)
			return nil
		},
	}
	addSharedFlags(gateSetCmd)
	gateCmd.AddCommand(gateGetCmd, gateSetCmd)
	rootCmd.AddCommand(gateCmd)

	// queue depth
	queueCmd := &cobra.Command{Use: "queue", Short: "Queue operations"}
	queueDepthCmd := &cobra.Command{
		Use:   "depth",
		Short: "Show fan-out queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			d, err := rt.Queue().Depth(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("available=%d retrying=%d leased=%d dead_lettered=%d\n",
				d.Available, d.Retrying, d.Leased, d.DeadLettered)
			return nil
		},
	}
	addSharedFlags(queueDepthCmd)
	queueCmd.AddCommand(queueDepthCmd)

	queuePurgeCmd := &cobra.Command{
		Use:   "purge-dlq",
		Short: "Drop dead-lettered fan-out batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			n, err := rt.Queue().PurgeDeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("purged %d\n", n)
			return nil
		},
	}
	addSharedFlags(queuePurgeCmd)
	queueCmd.AddCommand(queuePurgeCmd)
	rootCmd.AddCommand(queueCmd)

	// health
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check local store and cache health",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.CheckHealth(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	addSharedFlags(healthCmd)
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func normalizeSwitch(s string) string {
	switch s {
	case "on":
		return "true"
	case "off":
		return "false"
	}
	return s
}
