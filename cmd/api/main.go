package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/your-org/photolabel/internal/api"
	"github.com/your-org/photolabel/internal/api/handlers"
	"github.com/your-org/photolabel/internal/api/ws"
	"github.com/your-org/photolabel/internal/clustering"
	"github.com/your-org/photolabel/internal/config"
	"github.com/your-org/photolabel/internal/embedding"
	"github.com/your-org/photolabel/internal/ledger"
	"github.com/your-org/photolabel/internal/observability"
	"github.com/your-org/photolabel/internal/queue"
	"github.com/your-org/photolabel/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting photolabel API service", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Job status ledger lives in Redis
	rdb, err := queue.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		slog.Error("connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	checks := []handlers.Check{
		{Name: "postgres", Fn: db.Ping},
		{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		{Name: "minio", Fn: minioStore.Ping},
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Feed job events from NATS to websocket clients
	if cfg.NATS.URL != "" {
		publisher, err := queue.NewEventPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		if err := publisher.EnsureStream(ctx); err != nil {
			slog.Warn("ensure job events stream", "error", err)
		}
		checks = append(checks, handlers.Check{
			Name: "nats",
			Fn:   func(context.Context) error { return publisher.Ping() },
		})

		consumer, err := queue.NewEventConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeJobEvents(ctx, "api-job-events", hub.BroadcastJobEvent); err != nil {
			slog.Warn("start job event consumer", "error", err)
		}
	}

	embedder := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	engine := clustering.NewEngine(db, clustering.ParamsFromConfig(cfg.Clustering))

	router := api.NewRouter(api.RouterConfig{
		APIKey:    cfg.Server.APIKey,
		Clusterer: clustering.NewService(engine),
		Jobs:      ledger.NewRedisLedger(rdb, cfg.Labeling.StatusTTL),
		Embedder:  embedder,
		Images:    db,
		Checks:    checks,
		Hub:       hub,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Clustering a large library can take a while.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
