package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/your-org/photolabel/internal/changefeed"
	"github.com/your-org/photolabel/internal/config"
	"github.com/your-org/photolabel/internal/embedding"
	"github.com/your-org/photolabel/internal/ledger"
	"github.com/your-org/photolabel/internal/observability"
	"github.com/your-org/photolabel/internal/pipeline"
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

	slog.Info("starting label worker",
		"workers", cfg.Labeling.WorkerCount,
		"queue_backend", cfg.Queue.Backend,
		"cpu_cores", runtime.NumCPU(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Queue and ledger
	var (
		q   queue.Backend
		led pipeline.Ledger
		rdb *redis.Client
	)
	switch cfg.Queue.Backend {
	case "memory":
		q = queue.NewMemoryQueue()
		led = ledger.NewMemoryLedger(cfg.Labeling.StatusTTL)
	default:
		rdb, err = queue.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			slog.Error("connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		q = queue.NewRedisQueue(rdb, cfg.Queue.Stream)
		led = ledger.NewRedisLedger(rdb, cfg.Labeling.StatusTTL)
	}

	if err := q.EnsureGroup(ctx, cfg.Queue.Group); err != nil {
		slog.Error("ensure consumer group", "error", err, "group", cfg.Queue.Group)
		os.Exit(1)
	}

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

	deps := pipeline.ProcessorDeps{
		Queue:       q,
		Group:       cfg.Queue.Group,
		Ledger:      led,
		Objects:     minioStore,
		Classifier:  embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout),
		Images:      db,
		DetectFaces: cfg.Labeling.DetectFaces,
	}

	// Job events are best effort; the worker runs without NATS.
	if cfg.NATS.URL != "" {
		publisher, err := queue.NewEventPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("connect to nats, job events disabled", "error", err)
		} else {
			defer publisher.Close()
			if err := publisher.EnsureStream(ctx); err != nil {
				slog.Warn("ensure job events stream", "error", err)
			}
			deps.Events = publisher
		}
	}

	proc := pipeline.NewProcessor(deps)

	supCfg := pipeline.SupervisorConfig{
		Pool: pipeline.NewPool(q, proc, pipeline.PoolConfig{
			Group:          cfg.Queue.Group,
			ConsumerPrefix: cfg.Queue.ConsumerPrefix,
			Workers:        cfg.Labeling.WorkerCount,
			BlockTimeout:   cfg.Queue.BlockTimeout,
		}),
	}
	if cfg.Labeling.SweepEnabled() {
		supCfg.Sweeper = pipeline.NewSweeper(q, proc, cfg.Queue.Group)
	}
	if !cfg.ChangeFeed.Disabled {
		supCfg.Listener = changefeed.NewListener(
			changefeed.PoolSource{Pool: db.Pool()},
			q,
			cfg.ChangeFeed.Channel,
			cfg.ChangeFeed.PollTimeout,
		)
	}
	if cfg.Labeling.BackfillOnStartup {
		supCfg.Backfill = func(ctx context.Context) error {
			if _, err := changefeed.Backfill(ctx, db, q); err != nil {
				return err
			}
			if !cfg.Labeling.DetectFaces {
				return nil
			}
			_, err := pipeline.BackfillFaces(ctx, db, proc)
			return err
		}
	}

	sup := pipeline.NewSupervisor(supCfg)
	if err := sup.Start(ctx); err != nil {
		slog.Error("start supervisor", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := q.Depth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- sup.Wait() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down worker...")
		sup.Stop()
		err = <-done
	case err = <-done:
	}

	cancel()
	if err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
