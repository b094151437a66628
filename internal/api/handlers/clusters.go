package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/photolabel/internal/clustering"
	"github.com/your-org/photolabel/pkg/dto"
)

type Clusterer interface {
	Cluster(ctx context.Context, userID uuid.UUID) ([]clustering.Group, error)
}

type ClusterHandler struct {
	clusterer Clusterer
}

func NewClusterHandler(clusterer Clusterer) *ClusterHandler {
	return &ClusterHandler{clusterer: clusterer}
}

// Create runs a clustering pass over the user's face detections.
func (h *ClusterHandler) Create(c *gin.Context) {
	var req dto.ClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	groups, err := h.clusterer.Cluster(c.Request.Context(), userID)
	if err != nil {
		slog.Error("cluster faces", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clustering failed"})
		return
	}

	c.JSON(http.StatusOK, toClusterResponse(groups))
}

func toClusterResponse(groups []clustering.Group) dto.ClusterResponse {
	resp := make(dto.ClusterResponse, len(groups))
	for _, g := range groups {
		persons := make([]dto.ClusterPerson, 0, len(g.Members))
		for _, m := range g.Members {
			persons = append(persons, dto.ClusterPerson{
				ID:             m.ID,
				Coordinate:     m.BBox,
				ImageID:        m.Image.ID,
				ImageCreatedAt: m.Image.CreatedAt,
				ImageBucketID:  m.Image.BucketID,
				ImageName:      m.Image.Name,
				ImageLabel:     m.Image.Labels,
			})
		}
		resp[g.Label] = dto.ClusterGroup{
			ClusterID:   g.ClusterID,
			ClusterName: g.ClusterName,
			Person:      persons,
		}
	}
	return resp
}
