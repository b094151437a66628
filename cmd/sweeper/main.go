package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/your-org/photolabel/internal/changefeed"
	"github.com/your-org/photolabel/internal/config"
	"github.com/your-org/photolabel/internal/embedding"
	"github.com/your-org/photolabel/internal/ledger"
	"github.com/your-org/photolabel/internal/observability"
	"github.com/your-org/photolabel/internal/pipeline"
	"github.com/your-org/photolabel/internal/queue"
	"github.com/your-org/photolabel/internal/storage"
)

// sweeper reprocesses every entry left pending in the label group, oldest
// first, then exits. With -backfill it first enqueues all unlabeled images and
// detects faces for labeled images that have none recorded.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	backfill := flag.Bool("backfill", false, "enqueue unlabeled images and detect missing faces before sweeping")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Queue.Backend != "redis" {
		slog.Error("sweeper needs a shared queue", "queue_backend", cfg.Queue.Backend)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := queue.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		slog.Error("connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	q := queue.NewRedisQueue(rdb, cfg.Queue.Stream)
	if err := q.EnsureGroup(ctx, cfg.Queue.Group); err != nil {
		slog.Error("ensure consumer group", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	if *backfill {
		n, err := changefeed.Backfill(ctx, db, q)
		if err != nil {
			slog.Error("backfill", "error", err)
			os.Exit(1)
		}
		slog.Info("backfill done", "enqueued", n)
	}

	proc := pipeline.NewProcessor(pipeline.ProcessorDeps{
		Queue:       q,
		Group:       cfg.Queue.Group,
		Ledger:      ledger.NewRedisLedger(rdb, cfg.Labeling.StatusTTL),
		Objects:     minioStore,
		Classifier:  embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout),
		Images:      db,
		DetectFaces: cfg.Labeling.DetectFaces,
	})

	if *backfill && cfg.Labeling.DetectFaces {
		n, err := pipeline.BackfillFaces(ctx, db, proc)
		if err != nil {
			slog.Error("face backfill", "error", err)
			os.Exit(1)
		}
		slog.Info("face backfill done", "detected", n)
	}

	n, err := pipeline.NewSweeper(q, proc, cfg.Queue.Group).Run(ctx)
	if err != nil {
		slog.Error("sweep", "error", err)
		os.Exit(1)
	}
	slog.Info("sweep done", "processed", n)
}
