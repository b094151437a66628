package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SearchImagesRequest struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Query  string     `json:"query" binding:"required"`
	Limit  int        `json:"limit"`
}

type ImageResult struct {
	ID        uuid.UUID       `json:"id"`
	BucketID  string          `json:"image_bucket_id"`
	ImageName string          `json:"image_name"`
	Labels    json.RawMessage `json:"labels,omitempty"`
	Score     float32         `json:"score"`
	CreatedAt time.Time       `json:"created_at"`
}

type SearchImagesResponse struct {
	Results []ImageResult `json:"results"`
}
