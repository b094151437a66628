package pipeline

import (
	"context"
	"reflect"
	"testing"

	"github.com/your-org/photolabel/internal/models"
)

func TestSweeperNothingPending(t *testing.T) {
	h := newHarness(false)
	proc := &countingProcessor{}

	n, err := NewSweeper(h.queue, proc, testGroup).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 0 || len(proc.calls()) != 0 {
		t.Errorf("Run() = %d with %d processing calls, want 0", n, len(proc.calls()))
	}
}

func TestSweeperOldestFirst(t *testing.T) {
	h := newHarness(false)
	// Owned by different consumers.
	a := h.deliver("img-a", "c2")
	b := h.deliver("img-b", "c1")
	c := h.deliver("img-c", "c3")

	proc := &countingProcessor{}
	n, err := NewSweeper(h.queue, proc, testGroup).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Run() = %d, want 3", n)
	}
	if got, want := proc.calls(), []string{a.ID, b.ID, c.ID}; !reflect.DeepEqual(got, want) {
		t.Errorf("processing order = %v, want %v", got, want)
	}
}

func TestSweeperAcksDanglingEntries(t *testing.T) {
	h := newHarness(false)
	gone := h.deliver("img-gone", "c1")
	kept := h.deliver("img-kept", "c1")
	h.queue.MemoryQueue.Delete(context.Background(), gone.ID)

	proc := &countingProcessor{}
	n, err := NewSweeper(h.queue, proc, testGroup).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 1 || proc.calls()[0] != kept.ID {
		t.Errorf("processed %v, want only %s", proc.calls(), kept.ID)
	}
	// The dangling id is acked; the kept one stays pending because the counting
	// processor never acks.
	if h.pending() != 1 {
		t.Errorf("pending = %d, want 1", h.pending())
	}
}

func TestSweeperRecoversFailedJobs(t *testing.T) {
	h := newHarness(false)
	h.classifier.failures = 1
	entry := h.deliver("img-1", "c1")

	// First attempt fails and leaves the entry pending.
	if err := h.proc.Process(context.Background(), entry); !IsRetryable(err) {
		t.Fatalf("first Process() error = %v, want retryable", err)
	}

	n, err := NewSweeper(h.queue, h.proc, testGroup).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Run() = %d, want 1", n)
	}
	if h.pending() != 0 {
		t.Errorf("pending = %d, want 0", h.pending())
	}
	if got := h.ledger.get("img-1"); got != models.JobStatusCompleted {
		t.Errorf("ledger status = %q, want completed", got)
	}
}
