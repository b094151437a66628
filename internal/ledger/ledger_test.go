package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/your-org/photolabel/internal/models"
)

var testJob = models.Job{ImageID: "img-1", BucketID: "bucket-a", ObjectName: "beach.jpg"}

func TestKey(t *testing.T) {
	if got := Key("abc"); got != "image_job:abc" {
		t.Errorf("Key() = %q", got)
	}
}

func TestRecordFromHash(t *testing.T) {
	tests := []struct {
		name    string
		hash    map[string]string
		want    models.JobStatus
		labels  bool
		wantErr bool
	}{
		{
			name: "processing",
			hash: map[string]string{fieldBucketID: "b", fieldName: "n", fieldStatus: "processing"},
			want: models.JobStatusProcessing,
		},
		{
			name: "completed with labels",
			hash: map[string]string{
				fieldBucketID: "b", fieldName: "n", fieldStatus: "completed",
				fieldLabels: `{"location_labels":[{"label":"beach","score":0.9}],"action_labels":[],"event_labels":[]}`,
			},
			want:   models.JobStatusCompleted,
			labels: true,
		},
		{
			name:    "corrupt labels",
			hash:    map[string]string{fieldStatus: "completed", fieldLabels: "{"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := recordFromHash("img", tt.hash)
			if (err != nil) != tt.wantErr {
				t.Fatalf("recordFromHash() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if rec.Status != tt.want {
				t.Errorf("Status = %q, want %q", rec.Status, tt.want)
			}
			if (rec.Labels != nil) != tt.labels {
				t.Errorf("Labels = %+v, want present=%v", rec.Labels, tt.labels)
			}
		})
	}
}

func TestMemoryLedgerTransitions(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(time.Hour)

	if _, err := l.Get(ctx, testJob.ImageID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() before write error = %v, want ErrNotFound", err)
	}

	if err := l.MarkProcessing(ctx, testJob); err != nil {
		t.Fatal(err)
	}
	rec, err := l.Get(ctx, testJob.ImageID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.JobStatusProcessing || rec.BucketID != "bucket-a" || rec.ObjectName != "beach.jpg" {
		t.Errorf("record = %+v", rec)
	}

	if err := l.MarkFailed(ctx, testJob, "fetch image: timeout"); err != nil {
		t.Fatal(err)
	}
	rec, _ = l.Get(ctx, testJob.ImageID)
	if rec.Status != models.JobStatusFailed || rec.Error == "" {
		t.Errorf("record after failure = %+v", rec)
	}

	labels := models.Labels{Location: []models.LabelScore{{Label: "beach", Score: 0.8}}}
	if err := l.MarkCompleted(ctx, testJob, labels); err != nil {
		t.Fatal(err)
	}
	rec, _ = l.Get(ctx, testJob.ImageID)
	if rec.Status != models.JobStatusCompleted {
		t.Errorf("Status = %q, want completed", rec.Status)
	}
	if rec.Error != "" {
		t.Errorf("Error = %q, stale failure reason should be cleared", rec.Error)
	}
	if rec.Labels == nil || rec.Labels.Location[0].Label != "beach" {
		t.Errorf("Labels = %+v", rec.Labels)
	}
}

func TestMemoryLedgerKeepsCompleted(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	labels := models.Labels{Location: []models.LabelScore{{Label: "beach", Score: 0.8}}}
	if err := l.MarkCompleted(ctx, testJob, labels); err != nil {
		t.Fatal(err)
	}

	// A duplicate delivery of the same job starts and then fails.
	if err := l.MarkProcessing(ctx, testJob); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkFailed(ctx, testJob, "classify image: timeout"); err != nil {
		t.Fatal(err)
	}

	rec, err := l.Get(ctx, testJob.ImageID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.JobStatusCompleted || rec.Labels == nil || rec.Error != "" {
		t.Errorf("record = %+v, want completed with labels", rec)
	}

	// Completing again still overwrites.
	relabeled := models.Labels{Event: []models.LabelScore{{Label: "party", Score: 0.6}}}
	if err := l.MarkCompleted(ctx, testJob, relabeled); err != nil {
		t.Fatal(err)
	}
	rec, _ = l.Get(ctx, testJob.ImageID)
	if rec.Labels == nil || len(rec.Labels.Event) != 1 {
		t.Errorf("labels = %+v, want relabeled", rec.Labels)
	}

	// Once the completed record expired, a new run is tracked again.
	now = now.Add(2 * time.Hour)
	if err := l.MarkProcessing(ctx, testJob); err != nil {
		t.Fatal(err)
	}
	rec, _ = l.Get(ctx, testJob.ImageID)
	if rec.Status != models.JobStatusProcessing {
		t.Errorf("Status = %q after expiry, want processing", rec.Status)
	}
}

func TestMemoryLedgerExpiry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(10800 * time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if err := l.MarkProcessing(ctx, testJob); err != nil {
		t.Fatal(err)
	}

	now = now.Add(10799 * time.Second)
	if _, err := l.Get(ctx, testJob.ImageID); err != nil {
		t.Fatalf("Get() before TTL error = %v", err)
	}

	// A write refreshes the TTL.
	if err := l.MarkProcessing(ctx, testJob); err != nil {
		t.Fatal(err)
	}
	now = now.Add(10799 * time.Second)
	if _, err := l.Get(ctx, testJob.ImageID); err != nil {
		t.Fatalf("Get() after refresh error = %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := l.Get(ctx, testJob.ImageID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after TTL error = %v, want ErrNotFound", err)
	}
}
