package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/your-org/photolabel/internal/models"
)

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RedisQueue is a job queue backed by one Redis stream.
type RedisQueue struct {
	rdb    *redis.Client
	stream string
}

func NewRedisQueue(rdb *redis.Client, stream string) *RedisQueue {
	return &RedisQueue{rdb: rdb, stream: stream}
}

// Enqueue appends the job. XADD is atomic: the entry is either fully written or not at all.
func (q *RedisQueue) Enqueue(ctx context.Context, job models.Job) (string, error) {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	fields := job.Fields()
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", job.ImageID, err)
	}
	return id, nil
}

// EnsureGroup creates the group at the start of the log. An existing group is
// left untouched.
func (q *RedisQueue) EnsureGroup(ctx context.Context, group string) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s: %w", group, err)
	}
	return nil
}

// Read returns up to count entries for consumer. For ReadNew the call blocks
// up to block waiting for entries; block <= 0 never blocks.
func (q *RedisQueue) Read(ctx context.Context, group, consumer string, count int64, from ReadFrom, block time.Duration) ([]models.QueueEntry, error) {
	if block <= 0 || from == ReadReplay {
		block = -1
	}

	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{q.stream, from.streamID()},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if strings.HasPrefix(err.Error(), "NOGROUP") {
			return nil, fmt.Errorf("read group %s: %w", group, ErrNoGroup)
		}
		return nil, fmt.Errorf("read group %s: %w", group, err)
	}

	var entries []models.QueueEntry
	for _, s := range streams {
		for _, msg := range s.Messages {
			entries = append(entries, toEntry(msg))
		}
	}
	return entries, nil
}

func (q *RedisQueue) Ack(ctx context.Context, group, id string) error {
	if err := q.rdb.XAck(ctx, q.stream, group, id).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) Delete(ctx context.Context, id string) error {
	if err := q.rdb.XDel(ctx, q.stream, id).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// PendingSummary lists delivered but unacknowledged entries, oldest first.
func (q *RedisQueue) PendingSummary(ctx context.Context, group string) (models.PendingSummary, error) {
	sum, err := q.rdb.XPending(ctx, q.stream, group).Result()
	if err != nil {
		if strings.HasPrefix(err.Error(), "NOGROUP") {
			return models.PendingSummary{}, fmt.Errorf("pending %s: %w", group, ErrNoGroup)
		}
		return models.PendingSummary{}, fmt.Errorf("pending %s: %w", group, err)
	}
	if sum.Count == 0 {
		return models.PendingSummary{}, nil
	}

	ext, err := q.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  sum.Count,
	}).Result()
	if err != nil {
		return models.PendingSummary{}, fmt.Errorf("pending range %s: %w", group, err)
	}

	out := models.PendingSummary{
		Count:   sum.Count,
		Entries: make([]models.PendingEntry, 0, len(ext)),
	}
	for _, p := range ext {
		out.Entries = append(out.Entries, models.PendingEntry{
			ID:            p.ID,
			Consumer:      p.Consumer,
			Idle:          p.Idle,
			DeliveryCount: p.RetryCount,
		})
	}
	return out, nil
}

// Get fetches one entry by id.
func (q *RedisQueue) Get(ctx context.Context, id string) (models.QueueEntry, error) {
	msgs, err := q.rdb.XRange(ctx, q.stream, id, id).Result()
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("get %s: %w", id, err)
	}
	if len(msgs) == 0 {
		return models.QueueEntry{}, fmt.Errorf("get %s: %w", id, ErrEntryNotFound)
	}
	return toEntry(msgs[0]), nil
}

// Depth returns the number of entries currently in the log.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.XLen(ctx, q.stream).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func toEntry(msg redis.XMessage) models.QueueEntry {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprint(v)
		}
	}
	return models.QueueEntry{ID: msg.ID, Fields: fields}
}
