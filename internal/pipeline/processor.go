// Package pipeline runs label jobs: the worker pool that consumes new queue
// entries, the recovery sweeper for entries left pending by a crashed worker,
// and the supervisor that owns both alongside the change feed listener.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/photolabel/internal/embedding"
	"github.com/your-org/photolabel/internal/models"
	"github.com/your-org/photolabel/internal/observability"
	"github.com/your-org/photolabel/internal/queue"
)

type Queue interface {
	Read(ctx context.Context, group, consumer string, count int64, from queue.ReadFrom, block time.Duration) ([]models.QueueEntry, error)
	Ack(ctx context.Context, group, id string) error
	Delete(ctx context.Context, id string) error
	PendingSummary(ctx context.Context, group string) (models.PendingSummary, error)
	Get(ctx context.Context, id string) (models.QueueEntry, error)
}

type Ledger interface {
	MarkProcessing(ctx context.Context, job models.Job) error
	MarkCompleted(ctx context.Context, job models.Job, labels models.Labels) error
	MarkFailed(ctx context.Context, job models.Job, reason string) error
}

type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

type Classifier interface {
	Classify(ctx context.Context, image []byte) (*embedding.Classification, error)
	DetectFaces(ctx context.Context, image []byte) ([]models.DetectedFace, error)
}

type ImageStore interface {
	UpsertImageLabels(ctx context.Context, job models.Job, labels models.Labels, embedding []float32) (*models.Image, error)
	SaveFaceDetections(ctx context.Context, imageID uuid.UUID, faces []models.DetectedFace) (bool, error)
}

type EventPublisher interface {
	PublishJobEvent(ctx context.Context, ev models.JobEvent) error
}

// EntryProcessor handles one delivered queue entry.
type EntryProcessor interface {
	Process(ctx context.Context, entry models.QueueEntry) error
}

type ProcessorDeps struct {
	Queue      Queue
	Group      string
	Ledger     Ledger
	Objects    ObjectStore
	Classifier Classifier
	Images     ImageStore
	// Events is optional.
	Events      EventPublisher
	DetectFaces bool
}

// Processor labels one image and retires its queue entry. Labels are persisted
// and the status set to completed before the entry is acknowledged, so a crash
// at any point leads to reprocessing rather than loss.
type Processor struct {
	deps ProcessorDeps
}

func NewProcessor(deps ProcessorDeps) *Processor {
	return &Processor{deps: deps}
}

func (p *Processor) Process(ctx context.Context, entry models.QueueEntry) error {
	job, err := entry.Job()
	if err != nil {
		return p.drop(ctx, entry, job, err)
	}
	log := slog.With("entry_id", entry.ID, "image_id", job.ImageID)
	start := time.Now()

	if err := p.deps.Ledger.MarkProcessing(ctx, job); err != nil {
		return p.fail(ctx, job, retryable("status", err))
	}
	p.publish(ctx, job, models.JobStatusProcessing, nil, "")

	var image []byte
	err = timed("fetch", func() (err error) {
		image, err = p.deps.Objects.GetObject(ctx, job.BucketID, job.ObjectName)
		return err
	})
	if err != nil {
		return p.fail(ctx, job, retryable("fetch", err))
	}
	if err := checkImage(image); err != nil {
		return p.fail(ctx, job, retryable("image", err))
	}

	var cls *embedding.Classification
	err = timed("classify", func() (err error) {
		cls, err = p.deps.Classifier.Classify(ctx, image)
		return err
	})
	if err != nil {
		return p.fail(ctx, job, retryable("classify", err))
	}

	var img *models.Image
	err = timed("persist", func() (err error) {
		img, err = p.deps.Images.UpsertImageLabels(ctx, job, cls.Labels, cls.Embedding)
		return err
	})
	if err != nil {
		return p.fail(ctx, job, retryable("persist", err))
	}

	if p.deps.DetectFaces && !img.FaceDetected {
		if err := timed("faces", func() error { return p.saveFaces(ctx, img.ID, image) }); err != nil {
			return p.fail(ctx, job, retryable("faces", err))
		}
	}

	if err := p.deps.Ledger.MarkCompleted(ctx, job, cls.Labels); err != nil {
		return p.fail(ctx, job, retryable("status", err))
	}
	p.publish(ctx, job, models.JobStatusCompleted, &cls.Labels, "")

	// A failed ack leaves a completed job pending; reprocessing it is harmless.
	if err := p.deps.Queue.Ack(ctx, p.deps.Group, entry.ID); err != nil {
		observability.JobsProcessed.WithLabelValues("pending").Inc()
		return retryable("ack", err)
	}
	if err := p.deps.Queue.Delete(ctx, entry.ID); err != nil {
		log.Warn("delete acknowledged entry", "error", err)
	}

	observability.JobsProcessed.WithLabelValues("completed").Inc()
	log.Info("label job completed", "duration", time.Since(start))
	return nil
}

func (p *Processor) saveFaces(ctx context.Context, imageID uuid.UUID, image []byte) error {
	faces, err := p.deps.Classifier.DetectFaces(ctx, image)
	if err != nil {
		return err
	}
	saved, err := p.deps.Images.SaveFaceDetections(ctx, imageID, faces)
	if err != nil {
		return err
	}
	if saved {
		slog.Debug("stored face detections", "image_id", imageID, "faces", len(faces))
	}
	return nil
}

// fail records a retryable failure and leaves the entry pending.
func (p *Processor) fail(ctx context.Context, job models.Job, jerr *JobError) error {
	if err := p.deps.Ledger.MarkFailed(ctx, job, jerr.Error()); err != nil {
		slog.Warn("mark job failed", "error", err, "image_id", job.ImageID)
	}
	p.publish(ctx, job, models.JobStatusFailed, nil, jerr.Error())
	observability.JobsProcessed.WithLabelValues("pending").Inc()
	return jerr
}

// drop retires an entry that can never be processed.
func (p *Processor) drop(ctx context.Context, entry models.QueueEntry, job models.Job, cause error) error {
	jerr := &JobError{Stage: "decode", Err: fmt.Errorf("malformed entry %s: %w", entry.ID, cause)}

	if job.ImageID == "" {
		job.ImageID = entry.Fields[models.FieldImageID]
	}
	if job.ImageID != "" {
		job.BucketID = entry.Fields[models.FieldBucketID]
		job.ObjectName = entry.Fields[models.FieldImageName]
		if err := p.deps.Ledger.MarkFailed(ctx, job, jerr.Error()); err != nil {
			slog.Warn("mark job failed", "error", err, "image_id", job.ImageID)
		}
	}

	if err := p.deps.Queue.Ack(ctx, p.deps.Group, entry.ID); err != nil {
		return retryable("ack", errors.Join(cause, err))
	}
	if err := p.deps.Queue.Delete(ctx, entry.ID); err != nil {
		slog.Warn("delete malformed entry", "error", err, "entry_id", entry.ID)
	}
	observability.JobsProcessed.WithLabelValues("dropped").Inc()
	return jerr
}

func (p *Processor) publish(ctx context.Context, job models.Job, status models.JobStatus, labels *models.Labels, reason string) {
	if p.deps.Events == nil {
		return
	}
	ev := models.JobEvent{
		ImageID:    job.ImageID,
		BucketID:   job.BucketID,
		ObjectName: job.ObjectName,
		Status:     status,
		Labels:     labels,
		Error:      reason,
		Timestamp:  time.Now().UTC(),
	}
	if err := p.deps.Events.PublishJobEvent(ctx, ev); err != nil {
		slog.Warn("publish job event", "error", err, "image_id", job.ImageID, "status", status)
	}
}

func timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	observability.JobStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}
