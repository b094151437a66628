// Package ledger records the externally visible status of each label job.
//
// Records are keyed by image id and expire after a fixed TTL that is refreshed
// on every write, so abandoned jobs disappear on their own.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/your-org/photolabel/internal/models"
)

var ErrNotFound = errors.New("job status not found")

const keyPrefix = "image_job:"

// Hash field names.
const (
	fieldBucketID = "image_bucket_id"
	fieldName     = "image_name"
	fieldStatus   = "label_status"
	fieldLabels   = "labels"
	fieldError    = "error"
)

func Key(imageID string) string {
	return keyPrefix + imageID
}

// RedisLedger stores one hash per image.
type RedisLedger struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLedger(rdb *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{rdb: rdb, ttl: ttl}
}

// writeUnlessCompleted replaces the record and refreshes its TTL unless the
// record is already completed. ARGV[1] is the TTL in seconds, followed by
// field/value pairs.
var writeUnlessCompleted = redis.NewScript(`
if redis.call('HGET', KEYS[1], '` + fieldStatus + `') == '` + string(models.JobStatusCompleted) + `' then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('EXPIRE', KEYS[1], ARGV[1])
return 1
`)

// MarkProcessing and MarkFailed never replace a completed record: a
// duplicate delivery of a finished job must not hide its result.
func (l *RedisLedger) MarkProcessing(ctx context.Context, job models.Job) error {
	return l.writeGuarded(ctx, job, models.JobStatusProcessing, "")
}

func (l *RedisLedger) MarkCompleted(ctx context.Context, job models.Job, labels models.Labels) error {
	values, err := hashFields(job, models.JobStatusCompleted, &labels, "")
	if err != nil {
		return err
	}

	key := Key(job.ImageID)
	pipe := l.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write job status %s: %w", job.ImageID, err)
	}
	return nil
}

func (l *RedisLedger) MarkFailed(ctx context.Context, job models.Job, reason string) error {
	return l.writeGuarded(ctx, job, models.JobStatusFailed, reason)
}

func (l *RedisLedger) writeGuarded(ctx context.Context, job models.Job, status models.JobStatus, reason string) error {
	values, err := hashFields(job, status, nil, reason)
	if err != nil {
		return err
	}

	ttl := int64(l.ttl / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	args := make([]interface{}, 0, 1+2*len(values))
	args = append(args, ttl)
	for k, v := range values {
		args = append(args, k, v)
	}

	written, err := writeUnlessCompleted.Run(ctx, l.rdb, []string{Key(job.ImageID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("write job status %s: %w", job.ImageID, err)
	}
	if written == 0 {
		slog.Debug("keep completed job status", "image_id", job.ImageID, "skipped", status)
	}
	return nil
}

func (l *RedisLedger) Get(ctx context.Context, imageID string) (models.JobStatusRecord, error) {
	h, err := l.rdb.HGetAll(ctx, Key(imageID)).Result()
	if err != nil {
		return models.JobStatusRecord{}, fmt.Errorf("get job status %s: %w", imageID, err)
	}
	if len(h) == 0 {
		return models.JobStatusRecord{}, ErrNotFound
	}
	return recordFromHash(imageID, h)
}

func hashFields(job models.Job, status models.JobStatus, labels *models.Labels, reason string) (map[string]interface{}, error) {
	values := map[string]interface{}{
		fieldBucketID: job.BucketID,
		fieldName:     job.ObjectName,
		fieldStatus:   string(status),
	}
	if labels != nil {
		data, err := json.Marshal(labels)
		if err != nil {
			return nil, fmt.Errorf("marshal labels: %w", err)
		}
		values[fieldLabels] = string(data)
	}
	if reason != "" {
		values[fieldError] = reason
	}
	return values, nil
}

func recordFromHash(imageID string, h map[string]string) (models.JobStatusRecord, error) {
	rec := models.JobStatusRecord{
		ImageID:    imageID,
		BucketID:   h[fieldBucketID],
		ObjectName: h[fieldName],
		Status:     models.JobStatus(h[fieldStatus]),
		Error:      h[fieldError],
	}
	if raw := h[fieldLabels]; raw != "" {
		var labels models.Labels
		if err := json.Unmarshal([]byte(raw), &labels); err != nil {
			return models.JobStatusRecord{}, fmt.Errorf("decode labels for %s: %w", imageID, err)
		}
		rec.Labels = &labels
	}
	return rec, nil
}
