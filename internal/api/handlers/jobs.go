package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/photolabel/internal/ledger"
	"github.com/your-org/photolabel/internal/models"
	"github.com/your-org/photolabel/pkg/dto"
)

type JobStatusReader interface {
	Get(ctx context.Context, imageID string) (models.JobStatusRecord, error)
}

type JobHandler struct {
	ledger JobStatusReader
}

func NewJobHandler(l JobStatusReader) *JobHandler {
	return &JobHandler{ledger: l}
}

func (h *JobHandler) Get(c *gin.Context) {
	imageID := c.Param("image_id")

	rec, err := h.ledger.Get(c.Request.Context(), imageID)
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		slog.Error("get job status", "error", err, "image_id", imageID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job status"})
		return
	}

	c.JSON(http.StatusOK, dto.JobStatusResponse{
		ImageID:     rec.ImageID,
		BucketID:    rec.BucketID,
		ImageName:   rec.ObjectName,
		LabelStatus: rec.Status,
		Labels:      rec.Labels,
		Error:       rec.Error,
	})
}
