package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/your-org/photolabel/internal/observability"
	"github.com/your-org/photolabel/internal/queue"
)

// Sweeper reprocesses entries left pending by earlier workers. One Run is a
// single pass over the pending set as it was when the pass started.
type Sweeper struct {
	queue Queue
	proc  EntryProcessor
	group string
}

func NewSweeper(q Queue, proc EntryProcessor, group string) *Sweeper {
	return &Sweeper{queue: q, proc: proc, group: group}
}

// Run processes pending entries oldest first, one at a time, and returns how
// many were handed to the processor. Cancellation stops the pass between entries.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	sum, err := s.queue.PendingSummary(ctx, s.group)
	if err != nil {
		return 0, fmt.Errorf("pending summary: %w", err)
	}
	observability.QueuePending.Set(float64(sum.Count))
	if sum.Count == 0 {
		slog.Info("recovery sweep: nothing pending", "group", s.group)
		return 0, nil
	}

	ids := make([]string, 0, len(sum.Entries))
	for _, e := range sum.Entries {
		ids = append(ids, e.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return queue.CompareIDs(ids[i], ids[j]) < 0 })

	slog.Info("recovery sweep started", "group", s.group, "pending", len(ids))

	processed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			slog.Info("recovery sweep interrupted", "processed", processed, "remaining", len(ids)-processed)
			return processed, nil
		}

		entry, err := s.queue.Get(ctx, id)
		if errors.Is(err, queue.ErrEntryNotFound) {
			// The entry is gone from the log; clear the dangling pending reference.
			if err := s.queue.Ack(ctx, s.group, id); err != nil {
				return processed, fmt.Errorf("ack dangling %s: %w", id, err)
			}
			slog.Warn("acked pending entry missing from log", "entry_id", id)
			continue
		}
		if err != nil {
			return processed, fmt.Errorf("fetch pending %s: %w", id, err)
		}

		handle(context.WithoutCancel(ctx), s.proc, entry, "sweeper")
		processed++
		observability.SweptEntries.Inc()
	}

	slog.Info("recovery sweep complete", "processed", processed)
	return processed, nil
}
