// Package queue implements the label job queue: an append-only log with named
// consumer groups, at-least-once delivery, explicit acknowledgment and
// inspection of pending entries. Redis Streams is the production backend; the
// in-memory backend has the same group semantics and serves local runs and tests.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/photolabel/internal/models"
)

var (
	// ErrEntryNotFound is returned by Get when the entry is no longer in the log.
	ErrEntryNotFound = errors.New("queue entry not found")
	// ErrNoGroup is returned when reading from a group that was never created.
	ErrNoGroup = errors.New("consumer group does not exist")
)

// Backend is the full queue surface implemented by RedisQueue and MemoryQueue.
type Backend interface {
	Enqueue(ctx context.Context, job models.Job) (string, error)
	EnsureGroup(ctx context.Context, group string) error
	Read(ctx context.Context, group, consumer string, count int64, from ReadFrom, block time.Duration) ([]models.QueueEntry, error)
	Ack(ctx context.Context, group, id string) error
	Delete(ctx context.Context, id string) error
	PendingSummary(ctx context.Context, group string) (models.PendingSummary, error)
	Get(ctx context.Context, id string) (models.QueueEntry, error)
	Depth(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

var (
	_ Backend = (*RedisQueue)(nil)
	_ Backend = (*MemoryQueue)(nil)
)

// ReadFrom selects which entries a group read delivers.
type ReadFrom int

const (
	// ReadNew delivers only entries never delivered to the group.
	ReadNew ReadFrom = iota
	// ReadReplay delivers the consumer's unacknowledged backlog in delivery order.
	ReadReplay
)

func (f ReadFrom) String() string {
	switch f {
	case ReadNew:
		return "new"
	case ReadReplay:
		return "replay-from-start"
	default:
		return fmt.Sprintf("ReadFrom(%d)", int(f))
	}
}

// streamID is the Redis XREADGROUP id for the read mode.
func (f ReadFrom) streamID() string {
	if f == ReadReplay {
		return "0"
	}
	return ">"
}

type entryID struct {
	ms  uint64
	seq uint64
}

func parseID(id string) (entryID, error) {
	msPart, seqPart, ok := strings.Cut(id, "-")
	if !ok {
		seqPart = "0"
	}
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return entryID{}, fmt.Errorf("parse entry id %q: %w", id, err)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return entryID{}, fmt.Errorf("parse entry id %q: %w", id, err)
	}
	return entryID{ms: ms, seq: seq}, nil
}

func (e entryID) String() string {
	return strconv.FormatUint(e.ms, 10) + "-" + strconv.FormatUint(e.seq, 10)
}

func (e entryID) compare(o entryID) int {
	switch {
	case e.ms < o.ms:
		return -1
	case e.ms > o.ms:
		return 1
	case e.seq < o.seq:
		return -1
	case e.seq > o.seq:
		return 1
	}
	return 0
}

// CompareIDs orders two entry ids numerically. Unparseable ids sort
// lexically after valid ones so that ordering stays total.
func CompareIDs(a, b string) int {
	ea, errA := parseID(a)
	eb, errB := parseID(b)
	switch {
	case errA == nil && errB == nil:
		return ea.compare(eb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}
