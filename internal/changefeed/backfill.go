package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/photolabel/internal/models"
	"github.com/your-org/photolabel/internal/observability"
)

type UnlabeledLister interface {
	ListUnlabeledImages(ctx context.Context) ([]models.Job, error)
}

// Backfill enqueues a job for every image that still has no labels, covering
// inserts that happened while no listener was running.
func Backfill(ctx context.Context, images UnlabeledLister, queue Enqueuer) (int, error) {
	jobs, err := images.ListUnlabeledImages(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unlabeled images: %w", err)
	}

	for i, job := range jobs {
		job.EnqueuedAt = time.Now()
		if _, err := queue.Enqueue(ctx, job); err != nil {
			return i, fmt.Errorf("enqueue image %s: %w", job.ImageID, err)
		}
		observability.JobsEnqueued.WithLabelValues("backfill").Inc()
	}

	slog.Info("backfill complete", "enqueued", len(jobs))
	return len(jobs), nil
}
