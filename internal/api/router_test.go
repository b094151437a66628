package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/photolabel/internal/api/handlers"
	"github.com/your-org/photolabel/internal/clustering"
	"github.com/your-org/photolabel/internal/ledger"
	"github.com/your-org/photolabel/internal/models"
)

type stubDeps struct{}

func (stubDeps) Cluster(context.Context, uuid.UUID) ([]clustering.Group, error) { return nil, nil }

func (stubDeps) Get(context.Context, string) (models.JobStatusRecord, error) {
	return models.JobStatusRecord{}, ledger.ErrNotFound
}

func (stubDeps) EmbedText(context.Context, string) ([]float32, error) { return []float32{1}, nil }

func (stubDeps) SearchImages(context.Context, []float32, *uuid.UUID, int) ([]models.ImageMatch, error) {
	return nil, nil
}

func TestRouterAuthAndRoutes(t *testing.T) {
	var d stubDeps
	r := NewRouter(RouterConfig{
		APIKey:    "secret",
		Clusterer: d,
		Jobs:      d,
		Embedder:  d,
		Images:    d,
		Checks:    []handlers.Check{{Name: "postgres", Fn: func(context.Context) error { return nil }}},
	})

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"healthz open", http.MethodGet, "/healthz", "", http.StatusOK},
		{"readyz open", http.MethodGet, "/readyz", "", http.StatusOK},
		{"metrics open", http.MethodGet, "/metrics", "", http.StatusOK},
		{"jobs needs key", http.MethodGet, "/v1/jobs/abc", "", http.StatusUnauthorized},
		{"jobs wrong key", http.MethodGet, "/v1/jobs/abc", "nope", http.StatusForbidden},
		{"jobs not found", http.MethodGet, "/v1/jobs/abc", "secret", http.StatusNotFound},
		{"clusters bad body", http.MethodPost, "/v1/clusters", "secret", http.StatusBadRequest},
		{"ws not mounted without hub", http.MethodGet, "/v1/ws", "secret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
