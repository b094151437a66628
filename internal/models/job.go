package models

import (
	"fmt"
	"time"
)

// Queue entry field names.
const (
	FieldImageID     = "image_id"
	FieldBucketID    = "image_bucket_id"
	FieldImageName   = "image_name"
	FieldEnqueueTime = "enqueue_time"
)

// Job identifies one image to be labeled.
type Job struct {
	ImageID    string    `json:"image_id"`
	BucketID   string    `json:"image_bucket_id"`
	ObjectName string    `json:"image_name"`
	EnqueuedAt time.Time `json:"enqueue_time"`
}

func (j Job) Validate() error {
	if j.ImageID == "" {
		return fmt.Errorf("missing %s", FieldImageID)
	}
	if j.BucketID == "" {
		return fmt.Errorf("missing %s", FieldBucketID)
	}
	if j.ObjectName == "" {
		return fmt.Errorf("missing %s", FieldImageName)
	}
	return nil
}

// Fields returns the on-wire representation of the job.
func (j Job) Fields() map[string]string {
	f := map[string]string{
		FieldImageID:   j.ImageID,
		FieldBucketID:  j.BucketID,
		FieldImageName: j.ObjectName,
	}
	if !j.EnqueuedAt.IsZero() {
		f[FieldEnqueueTime] = j.EnqueuedAt.UTC().Format(time.RFC3339Nano)
	}
	return f
}

// QueueEntry is one log entry as delivered by the job queue.
type QueueEntry struct {
	ID            string
	Fields        map[string]string
	DeliveryCount int64
}

// Job decodes the entry fields. Entries missing a required field are
// malformed and can never be processed.
func (e QueueEntry) Job() (Job, error) {
	j := Job{
		ImageID:    e.Fields[FieldImageID],
		BucketID:   e.Fields[FieldBucketID],
		ObjectName: e.Fields[FieldImageName],
	}
	if ts := e.Fields[FieldEnqueueTime]; ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Job{}, fmt.Errorf("parse %s: %w", FieldEnqueueTime, err)
		}
		j.EnqueuedAt = t
	}
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

// PendingEntry is a delivered but unacknowledged entry of a consumer group.
type PendingEntry struct {
	ID            string
	Consumer      string
	Idle          time.Duration
	DeliveryCount int64
}

type PendingSummary struct {
	Count   int64
	Entries []PendingEntry
}
