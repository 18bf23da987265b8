package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/colonyhq/colony/internal/config"
	"github.com/colonyhq/colony/internal/handoff"
	"github.com/colonyhq/colony/internal/knowledge"
	"github.com/colonyhq/colony/internal/retrieval"
	"github.com/colonyhq/colony/internal/retrieval/providers"
	"github.com/colonyhq/colony/internal/server"
	"github.com/colonyhq/colony/pkg/clog"
	"github.com/colonyhq/colony/pkg/storage"
)

const knowledgeSnapshotPath = "knowledge/snapshot.json"

var (
	app   = kingpin.New("colonyd", "Colony analysis substrate daemon.")
	start = app.Command("start", "Start the daemon.").Default()
)

// providerFactories lists every provider the daemon can construct.
// providers.yaml decides which of them are actually registered.
var providerFactories = map[string]retrieval.Factory{
	"wikipedia": providers.WikipediaFactory,
}

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	switch cmd {
	case start.FullCommand():
		if err := run(env); err != nil {
			slog.Error("daemon exited with error", "error", err)
			os.Exit(1)
		}
	}
}

func run(env *config.Env) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Setup storage
	var store storage.Storage
	var err error
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(ctx, env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			return err
		}
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			return err
		}
	}

	// Knowledge store, restored from the last snapshot when one exists.
	knowledgeStore := knowledge.NewStore()
	if knowledgeStore.Restore(ctx, store, knowledgeSnapshotPath) {
		slog.InfoContext(ctx, "restored knowledge snapshot",
			"discoveries", knowledgeStore.DiscoveryCount(),
			"signals", knowledgeStore.SignalCount(),
		)
	}

	queue := handoff.NewQueue()

	// Retrieval federation
	registry := retrieval.NewRegistry()
	cache := retrieval.NewCache(store, env.CacheTTL, env.CacheEnabled)
	quota := retrieval.NewQuotaManager(ctx, store, env.QuotaEnabled)
	searcher := retrieval.NewSearcher(registry, cache, quota)

	if cfg, err := retrieval.LoadConfig(env.ProvidersFile); err != nil {
		slog.WarnContext(ctx, "providers config not loaded, registering defaults", "error", err)
		registry.Register("wikipedia", providers.WikipediaFactory)
	} else {
		searcher.Apply(ctx, cfg, providerFactories)
	}
	go func() {
		if err := searcher.WatchConfig(ctx, env.ProvidersFile, providerFactories); err != nil {
			slog.WarnContext(ctx, "providers config watcher stopped", "error", err)
		}
	}()

	// Periodic maintenance: cache cleanup and knowledge snapshots.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := cache.CleanupExpired(ctx); removed > 0 {
					slog.InfoContext(ctx, "evicted expired cache entries", "removed", removed)
				}
				if err := knowledgeStore.Persist(ctx, store, knowledgeSnapshotPath); err != nil {
					slog.WarnContext(ctx, "failed to snapshot knowledge store", "error", err)
				}
			}
		}
	}()

	srv := server.New(env.HTTPHost, env.HTTPPort, knowledgeStore, queue, searcher, registry, cache, quota)
	err = srv.Start(ctx)

	// Final snapshot on the way down.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if perr := knowledgeStore.Persist(shutdownCtx, store, knowledgeSnapshotPath); perr != nil {
		slog.Warn("failed to persist final knowledge snapshot", "error", perr)
	}
	return err
}
