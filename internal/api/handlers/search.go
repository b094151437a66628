package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/photolabel/internal/models"
	"github.com/your-org/photolabel/pkg/dto"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type ImageSearcher interface {
	SearchImages(ctx context.Context, embedding []float32, uploaderID *uuid.UUID, limit int) ([]models.ImageMatch, error)
}

type SearchHandler struct {
	embedder TextEmbedder
	images   ImageSearcher
}

func NewSearchHandler(embedder TextEmbedder, images ImageSearcher) *SearchHandler {
	return &SearchHandler{embedder: embedder, images: images}
}

// Search ranks labeled images by cosine similarity to a free-text query.
func (h *SearchHandler) Search(c *gin.Context) {
	var req dto.SearchImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be blank"})
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	embedding, err := h.embedder.EmbedText(c.Request.Context(), query)
	if err != nil {
		slog.Error("embed search query", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "embedding service unavailable"})
		return
	}

	matches, err := h.images.SearchImages(c.Request.Context(), embedding, req.UserID, limit)
	if err != nil {
		slog.Error("search images", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	results := make([]dto.ImageResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, dto.ImageResult{
			ID:        m.Image.ID,
			BucketID:  m.Image.BucketID,
			ImageName: m.Image.Name,
			Labels:    m.Labels,
			Score:     m.Score,
			CreatedAt: m.Image.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, dto.SearchImagesResponse{Results: results})
}
