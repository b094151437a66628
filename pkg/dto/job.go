package dto

import (
	"time"

	"github.com/your-org/photolabel/internal/models"
)

type JobStatusResponse struct {
	ImageID     string           `json:"image_id"`
	BucketID    string           `json:"image_bucket_id"`
	ImageName   string           `json:"image_name"`
	LabelStatus models.JobStatus `json:"label_status"`
	Labels      *models.Labels   `json:"labels,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// WSJobEvent is pushed to websocket clients on every job status transition.
type WSJobEvent struct {
	Type        string           `json:"type"`
	ImageID     string           `json:"image_id"`
	BucketID    string           `json:"image_bucket_id"`
	ImageName   string           `json:"image_name"`
	LabelStatus models.JobStatus `json:"label_status"`
	Labels      *models.Labels   `json:"labels,omitempty"`
	Error       string           `json:"error,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}
