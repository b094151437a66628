package models

import "time"

type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// LabelScore is one label with its classifier probability.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Labels holds the top labels per taxonomy.
type Labels struct {
	Location []LabelScore `json:"location_labels"`
	Action   []LabelScore `json:"action_labels"`
	Event    []LabelScore `json:"event_labels"`
}

// JobStatusRecord is the externally visible lifecycle state of a label job.
type JobStatusRecord struct {
	ImageID    string    `json:"image_id"`
	BucketID   string    `json:"image_bucket_id"`
	ObjectName string    `json:"image_name"`
	Status     JobStatus `json:"label_status"`
	Labels     *Labels   `json:"labels,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// JobEvent is published on every status transition.
type JobEvent struct {
	ImageID    string    `json:"image_id"`
	BucketID   string    `json:"image_bucket_id"`
	ObjectName string    `json:"image_name"`
	Status     JobStatus `json:"label_status"`
	Labels     *Labels   `json:"labels,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
