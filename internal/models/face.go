package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Image struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UploaderID   *uuid.UUID `json:"uploader_id,omitempty" db:"uploader_id"`
	BucketID     string     `json:"image_bucket_id" db:"image_bucket_id"`
	Name         string     `json:"image_name" db:"image_name"`
	FaceDetected bool       `json:"is_face_detection" db:"is_face_detection"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// ImageRef is the image metadata attached to a face detection for response shaping.
type ImageRef struct {
	ID        uuid.UUID       `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	BucketID  string          `json:"image_bucket_id"`
	Name      string          `json:"image_name"`
	Labels    json.RawMessage `json:"labels,omitempty"`
}

// FaceDetection is one face found in one image.
type FaceDetection struct {
	ID        int64     `json:"id" db:"id"`
	Embedding []float32 `json:"-" db:"embedding"`
	BBox      []int32   `json:"coordinate" db:"coordinate"`
	ImageID   uuid.UUID `json:"image_id" db:"image_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ClusterID *int64    `json:"cluster_id,omitempty" db:"cluster_id"`
	Image     ImageRef  `json:"image"`
}

// ClusterCentroid is the persisted representative vector of one identity cluster.
type ClusterCentroid struct {
	ID       int64     `json:"id" db:"id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	Name     string    `json:"name" db:"name"`
	Centroid []float32 `json:"-" db:"centroid"`
}

// DetectedFace is a face returned by the embedding service, before persistence.
type DetectedFace struct {
	BBox      []int32   `json:"coordinate"`
	Embedding []float32 `json:"embedding"`
}

// ImageMatch is one result of a text-to-image search.
type ImageMatch struct {
	Image  Image           `json:"image"`
	Labels json.RawMessage `json:"labels,omitempty"`
	Score  float32         `json:"score"`
}
