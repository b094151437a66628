package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/your-org/photolabel/internal/models"
)

type memEntry struct {
	id     entryID
	fields map[string]string
}

type memPending struct {
	consumer    string
	deliveredAt time.Time
	deliveries  int64
}

type memGroup struct {
	lastDelivered entryID
	pending       map[entryID]*memPending
}

// MemoryQueue is an in-process queue with consumer-group semantics matching
// the Redis backend. Entries do not survive a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	last    entryID
	entries []memEntry
	groups  map[string]*memGroup
	// notify is closed and replaced whenever an entry is appended.
	notify chan struct{}
	now    func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		groups: make(map[string]*memGroup),
		notify: make(chan struct{}),
		now:    time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job models.Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ms := uint64(q.now().UnixMilli())
	id := entryID{ms: ms}
	if ms <= q.last.ms {
		id = entryID{ms: q.last.ms, seq: q.last.seq + 1}
	}
	q.last = id
	q.entries = append(q.entries, memEntry{id: id, fields: job.Fields()})

	close(q.notify)
	q.notify = make(chan struct{})
	return id.String(), nil
}

func (q *MemoryQueue) EnsureGroup(_ context.Context, group string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.groups[group]; !ok {
		q.groups[group] = &memGroup{pending: make(map[entryID]*memPending)}
	}
	return nil
}

func (q *MemoryQueue) Read(ctx context.Context, group, consumer string, count int64, from ReadFrom, block time.Duration) ([]models.QueueEntry, error) {
	var deadline <-chan time.Time
	if from == ReadNew && block > 0 {
		timer := time.NewTimer(block)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		q.mu.Lock()
		entries, err := q.readLocked(group, consumer, count, from)
		wake := q.notify
		q.mu.Unlock()

		if err != nil || len(entries) > 0 || deadline == nil {
			return entries, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-wake:
		}
	}
}

func (q *MemoryQueue) readLocked(group, consumer string, count int64, from ReadFrom) ([]models.QueueEntry, error) {
	g, ok := q.groups[group]
	if !ok {
		return nil, fmt.Errorf("read group %s: %w", group, ErrNoGroup)
	}
	if count <= 0 {
		count = int64(len(q.entries)) + int64(len(g.pending))
	}
	now := q.now()

	var out []models.QueueEntry
	switch from {
	case ReadNew:
		for _, e := range q.entries {
			if int64(len(out)) >= count {
				break
			}
			if e.id.compare(g.lastDelivered) <= 0 {
				continue
			}
			g.lastDelivered = e.id
			g.pending[e.id] = &memPending{consumer: consumer, deliveredAt: now, deliveries: 1}
			out = append(out, models.QueueEntry{ID: e.id.String(), Fields: copyFields(e.fields), DeliveryCount: 1})
		}
	case ReadReplay:
		ids := make([]entryID, 0, len(g.pending))
		for id, p := range g.pending {
			if p.consumer == consumer {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].compare(ids[j]) < 0 })
		for _, id := range ids {
			if int64(len(out)) >= count {
				break
			}
			p := g.pending[id]
			p.deliveries++
			p.deliveredAt = now
			entry := models.QueueEntry{ID: id.String(), DeliveryCount: p.deliveries}
			if e, ok := q.find(id); ok {
				entry.Fields = copyFields(e.fields)
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

func (q *MemoryQueue) Ack(_ context.Context, group, id string) error {
	eid, err := parseID(id)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if g, ok := q.groups[group]; ok {
		delete(g.pending, eid)
	}
	return nil
}

func (q *MemoryQueue) Delete(_ context.Context, id string) error {
	eid, err := parseID(id)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.id == eid {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryQueue) PendingSummary(_ context.Context, group string) (models.PendingSummary, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	g, ok := q.groups[group]
	if !ok {
		return models.PendingSummary{}, fmt.Errorf("pending %s: %w", group, ErrNoGroup)
	}

	now := q.now()
	out := models.PendingSummary{Count: int64(len(g.pending))}
	for id, p := range g.pending {
		out.Entries = append(out.Entries, models.PendingEntry{
			ID:            id.String(),
			Consumer:      p.consumer,
			Idle:          now.Sub(p.deliveredAt),
			DeliveryCount: p.deliveries,
		})
	}
	sort.Slice(out.Entries, func(i, j int) bool {
		return CompareIDs(out.Entries[i].ID, out.Entries[j].ID) < 0
	})
	return out, nil
}

func (q *MemoryQueue) Get(_ context.Context, id string) (models.QueueEntry, error) {
	eid, err := parseID(id)
	if err != nil {
		return models.QueueEntry{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.find(eid)
	if !ok {
		return models.QueueEntry{}, fmt.Errorf("get %s: %w", id, ErrEntryNotFound)
	}
	return models.QueueEntry{ID: id, Fields: copyFields(e.fields)}, nil
}

func (q *MemoryQueue) Depth(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.entries)), nil
}

func (q *MemoryQueue) Ping(context.Context) error { return nil }

func (q *MemoryQueue) find(id entryID) (memEntry, bool) {
	i := sort.Search(len(q.entries), func(i int) bool { return q.entries[i].id.compare(id) >= 0 })
	if i < len(q.entries) && q.entries[i].id == id {
		return q.entries[i], true
	}
	return memEntry{}, false
}

func copyFields(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
