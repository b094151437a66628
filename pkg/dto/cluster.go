package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ClusterRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ClusterPerson is one face detection in a clustering response.
type ClusterPerson struct {
	ID             int64           `json:"id"`
	Coordinate     []int32         `json:"coordinate"`
	ImageID        uuid.UUID       `json:"image_id"`
	ImageCreatedAt time.Time       `json:"image_created_at"`
	ImageBucketID  string          `json:"image_bucket_id"`
	ImageName      string          `json:"image_name"`
	ImageLabel     json.RawMessage `json:"image_label"`
}

type ClusterGroup struct {
	ClusterID   int64           `json:"cluster_id"`
	ClusterName string          `json:"cluster_name"`
	Person      []ClusterPerson `json:"person"`
}

// ClusterResponse maps a group label ("Person 0", "Noise 42") to its group.
type ClusterResponse map[string]ClusterGroup
