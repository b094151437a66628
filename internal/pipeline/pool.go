package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/photolabel/internal/models"
	"github.com/your-org/photolabel/internal/queue"
)

type PoolConfig struct {
	Group          string
	ConsumerPrefix string
	Workers        int
	BlockTimeout   time.Duration
}

// Pool runs a fixed number of workers sharing one consumer group.
type Pool struct {
	queue Queue
	proc  EntryProcessor
	cfg   PoolConfig
}

func NewPool(q Queue, proc EntryProcessor, cfg PoolConfig) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pool{queue: q, proc: proc, cfg: cfg}
}

// Run blocks until ctx is cancelled or a worker hits a queue transport error.
// In-flight entries are always finished before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		consumer := fmt.Sprintf("%s-%d", p.cfg.ConsumerPrefix, i)
		g.Go(func() error {
			return p.work(gctx, consumer)
		})
	}

	slog.Info("worker pool started", "workers", p.cfg.Workers, "group", p.cfg.Group)
	err := g.Wait()
	slog.Info("worker pool stopped")
	return err
}

func (p *Pool) work(ctx context.Context, consumer string) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		entries, err := p.queue.Read(ctx, p.cfg.Group, consumer, 1, queue.ReadNew, p.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("read queue", "error", err, "consumer", consumer)
			return fmt.Errorf("worker %s: %w", consumer, err)
		}

		for _, entry := range entries {
			// Processing is not interrupted by shutdown.
			handle(context.WithoutCancel(ctx), p.proc, entry, consumer)
		}
	}
}

func handle(ctx context.Context, proc EntryProcessor, entry models.QueueEntry, consumer string) {
	err := proc.Process(ctx, entry)
	if err == nil {
		return
	}
	if IsRetryable(err) {
		slog.Error("process job, left pending", "error", err, "entry_id", entry.ID, "consumer", consumer)
		return
	}
	slog.Error("drop malformed job", "error", err, "entry_id", entry.ID, "fields", entry.Fields, "consumer", consumer)
}
