package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/your-org/photolabel/internal/models"
)

type memRecord struct {
	hash    map[string]string
	expires time.Time
}

// MemoryLedger keeps records in process, paired with the in-memory queue backend.
type MemoryLedger struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]memRecord
	now     func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{ttl: ttl, records: make(map[string]memRecord), now: time.Now}
}

func (l *MemoryLedger) MarkProcessing(_ context.Context, job models.Job) error {
	return l.write(job, models.JobStatusProcessing, nil, "")
}

func (l *MemoryLedger) MarkCompleted(_ context.Context, job models.Job, labels models.Labels) error {
	return l.write(job, models.JobStatusCompleted, &labels, "")
}

func (l *MemoryLedger) MarkFailed(_ context.Context, job models.Job, reason string) error {
	return l.write(job, models.JobStatusFailed, nil, reason)
}

// write keeps a live completed record unless the new status is completed,
// matching RedisLedger.
func (l *MemoryLedger) write(job models.Job, status models.JobStatus, labels *models.Labels, reason string) error {
	values, err := hashFields(job, status, labels, reason)
	if err != nil {
		return err
	}
	h := make(map[string]string, len(values))
	for k, v := range values {
		h[k] = v.(string)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if status != models.JobStatusCompleted {
		if cur, ok := l.records[job.ImageID]; ok && now.Before(cur.expires) &&
			cur.hash[fieldStatus] == string(models.JobStatusCompleted) {
			return nil
		}
	}
	l.records[job.ImageID] = memRecord{hash: h, expires: now.Add(l.ttl)}
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, imageID string) (models.JobStatusRecord, error) {
	l.mu.Lock()
	rec, ok := l.records[imageID]
	if ok && !l.now().Before(rec.expires) {
		delete(l.records, imageID)
		ok = false
	}
	l.mu.Unlock()

	if !ok {
		return models.JobStatusRecord{}, ErrNotFound
	}
	return recordFromHash(imageID, rec.hash)
}
