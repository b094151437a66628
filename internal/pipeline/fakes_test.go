package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/your-org/photolabel/internal/embedding"
	"github.com/your-org/photolabel/internal/models"
	"github.com/your-org/photolabel/internal/queue"
)

const testGroup = "image_label_group"

var errInjected = errors.New("injected failure")

// trace records side effects in the order they happen.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, fmt.Sprintf(format, args...))
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

type fakeLedger struct {
	tr      *trace
	mu      sync.Mutex
	status  map[string]models.JobStatus
	history map[string][]models.JobStatus
	failOn  models.JobStatus
}

func newFakeLedger(tr *trace) *fakeLedger {
	return &fakeLedger{tr: tr, status: map[string]models.JobStatus{}, history: map[string][]models.JobStatus{}}
}

func (l *fakeLedger) set(job models.Job, s models.JobStatus) error {
	if l.failOn == s {
		return errInjected
	}
	l.mu.Lock()
	l.status[job.ImageID] = s
	l.history[job.ImageID] = append(l.history[job.ImageID], s)
	l.mu.Unlock()
	l.tr.add("status:%s", s)
	return nil
}

func (l *fakeLedger) MarkProcessing(_ context.Context, job models.Job) error {
	return l.set(job, models.JobStatusProcessing)
}

func (l *fakeLedger) MarkCompleted(_ context.Context, job models.Job, _ models.Labels) error {
	return l.set(job, models.JobStatusCompleted)
}

func (l *fakeLedger) MarkFailed(_ context.Context, job models.Job, _ string) error {
	return l.set(job, models.JobStatusFailed)
}

func (l *fakeLedger) get(id string) models.JobStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status[id]
}

// testJPEG is a small valid image served by fakeObjects.
var testJPEG = func() []byte {
	var buf bytes.Buffer
	img := imaging.New(4, 4, color.NRGBA{R: 200, G: 120, B: 40, A: 255})
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

type fakeObjects struct {
	tr  *trace
	err error
	// data overrides the served object when set.
	data []byte
}

func (o *fakeObjects) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.tr.add("fetch")
	if o.data != nil {
		return o.data, nil
	}
	return testJPEG, nil
}

type fakeClassifier struct {
	tr *trace
	mu sync.Mutex
	// failures is how many Classify calls fail before succeeding.
	failures int
	faces    []models.DetectedFace
	// gate, when set, blocks Classify until closed.
	gate chan struct{}
}

func (c *fakeClassifier) Classify(_ context.Context, _ []byte) (*embedding.Classification, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	if c.failures > 0 {
		c.failures--
		c.mu.Unlock()
		return nil, errInjected
	}
	c.mu.Unlock()
	c.tr.add("classify")
	return &embedding.Classification{
		Labels:    models.Labels{Location: []models.LabelScore{{Label: "beach", Score: 0.9}}},
		Embedding: []float32{0.1, 0.2},
	}, nil
}

func (c *fakeClassifier) DetectFaces(_ context.Context, _ []byte) ([]models.DetectedFace, error) {
	c.tr.add("faces")
	return c.faces, nil
}

type fakeImages struct {
	tr        *trace
	mu        sync.Mutex
	rows      map[string]*models.Image
	faceCalls int
}

func newFakeImages(tr *trace) *fakeImages {
	return &fakeImages{tr: tr, rows: map[string]*models.Image{}}
}

func (s *fakeImages) UpsertImageLabels(_ context.Context, job models.Job, _ models.Labels, _ []float32) (*models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := job.BucketID + "/" + job.ObjectName
	img, ok := s.rows[key]
	if !ok {
		img = &models.Image{ID: uuid.New(), BucketID: job.BucketID, Name: job.ObjectName}
		s.rows[key] = img
	}
	s.tr.add("persist")
	cp := *img
	return &cp, nil
}

func (s *fakeImages) SaveFaceDetections(_ context.Context, imageID uuid.UUID, _ []models.DetectedFace) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faceCalls++
	for _, img := range s.rows {
		if img.ID == imageID {
			if img.FaceDetected {
				return false, nil
			}
			img.FaceDetected = true
			return true, nil
		}
	}
	return false, errors.New("image not found")
}

// tracedQueue wraps the in-memory queue and records acks and deletes.
type tracedQueue struct {
	*queue.MemoryQueue
	tr     *trace
	ackErr error
}

func (q *tracedQueue) Ack(ctx context.Context, group, id string) error {
	if q.ackErr != nil {
		return q.ackErr
	}
	q.tr.add("ack")
	return q.MemoryQueue.Ack(ctx, group, id)
}

func (q *tracedQueue) Delete(ctx context.Context, id string) error {
	q.tr.add("delete")
	return q.MemoryQueue.Delete(ctx, id)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.JobEvent
}

func (e *fakeEvents) PublishJobEvent(_ context.Context, ev models.JobEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

type harness struct {
	tr         *trace
	queue      *tracedQueue
	ledger     *fakeLedger
	objects    *fakeObjects
	classifier *fakeClassifier
	images     *fakeImages
	events     *fakeEvents
	proc       *Processor
}

func newHarness(detectFaces bool) *harness {
	tr := &trace{}
	h := &harness{
		tr:         tr,
		queue:      &tracedQueue{MemoryQueue: queue.NewMemoryQueue(), tr: tr},
		ledger:     newFakeLedger(tr),
		objects:    &fakeObjects{tr: tr},
		classifier: &fakeClassifier{tr: tr},
		images:     newFakeImages(tr),
		events:     &fakeEvents{},
	}
	h.queue.EnsureGroup(context.Background(), testGroup)
	h.proc = NewProcessor(ProcessorDeps{
		Queue:       h.queue,
		Group:       testGroup,
		Ledger:      h.ledger,
		Objects:     h.objects,
		Classifier:  h.classifier,
		Images:      h.images,
		Events:      h.events,
		DetectFaces: detectFaces,
	})
	return h
}

// deliver enqueues a job and reads it as consumer, leaving it pending.
func (h *harness) deliver(imageID, consumer string) models.QueueEntry {
	ctx := context.Background()
	h.queue.Enqueue(ctx, models.Job{ImageID: imageID, BucketID: "bucket", ObjectName: imageID + ".jpg"})
	entries, _ := h.queue.Read(ctx, testGroup, consumer, 1, queue.ReadNew, 0)
	return entries[0]
}

func (h *harness) pending() int64 {
	sum, _ := h.queue.PendingSummary(context.Background(), testGroup)
	return sum.Count
}

// countingProcessor records the entries it is handed.
type countingProcessor struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (c *countingProcessor) Process(_ context.Context, entry models.QueueEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, entry.ID)
	return c.err
}

func (c *countingProcessor) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}
