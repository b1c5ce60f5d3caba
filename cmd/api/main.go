package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memorybank/internal/config"
	"memorybank/internal/docstore"
	"memorybank/internal/embedding"
	"memorybank/internal/handlers"
	"memorybank/internal/http"
	"memorybank/internal/indexer"
	"memorybank/internal/search"
	"memorybank/internal/storage"
	"memorybank/internal/watcher"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	indexRepo := storage.NewIndexRepo(db)

	// Initialize the sandboxed document store
	store, err := docstore.NewStore(cfg.KnowledgeRoot)
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}
	slog.Info("Document store initialized", "root", store.Root())

	embedder := embedding.NewClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize)
	if embedder.IsConfigured() {
		slog.Info("Embedding client configured", "model", cfg.EmbeddingModelName, "vector_size", cfg.EmbeddingVectorSize)
	} else {
		slog.Warn("Embedding provider not configured; search is degraded to empty results")
	}

	cache := search.NewCache()
	coordinator := indexer.NewCoordinator(store, indexRepo, embedder, cache, cfg.ChunkSize, cfg.SyncWorkers)
	store.SetNotifier(coordinator)
	coordinator.Start(ctx)

	// Startup reconciliation: re-embed what changed while the service was
	// down, purge what disappeared, load the rest from the ledger. Index
	// freshness is best-effort, so failures are logged, not fatal.
	if err := coordinator.Reconcile(ctx); err != nil {
		slog.Warn("Startup reconciliation finished with errors", "error", err)
	}

	if cfg.WatchEnabled {
		w := watcher.New(store.Root(), coordinator.FileChanged, coordinator.FileRemoved, slog.Default())
		if err := w.Start(ctx); err != nil {
			log.Fatalf("Failed to start filesystem watcher: %v", err)
		}
		defer w.Stop()
		slog.Info("Filesystem watcher started", "root", store.Root())
	}

	engine := search.NewEngine(embedder, cache)

	router := http.NewRouter(&http.Deps{
		Files:  handlers.NewFilesHandler(store, indexRepo),
		Search: handlers.NewSearchHandler(engine),
		Sync:   handlers.NewSyncHandler(coordinator),
		Health: handlers.NewHealthHandler(embedder, cache),
	})

	server := &nethttp.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("Starting API server", "port", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}
