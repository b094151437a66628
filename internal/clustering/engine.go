// Package clustering groups a user's face detections into identity clusters
// and reconciles each pass against the centroids persisted by earlier passes.
package clustering

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/your-org/photolabel/internal/config"
	"github.com/your-org/photolabel/internal/models"
	"github.com/your-org/photolabel/internal/observability"
)

// Store is the persistence the engine reads detections and centroids from
// and writes assignments to.
type Store interface {
	GetFaceDetections(ctx context.Context, userID uuid.UUID) ([]models.FaceDetection, error)
	GetClusterCentroids(ctx context.Context, userID uuid.UUID) ([]models.ClusterCentroid, error)
	CreateCentroid(ctx context.Context, userID uuid.UUID, name string, centroid []float32) (int64, error)
	AssignDetections(ctx context.Context, clusterID int64, detectionIDs []int64) error
}

type Params struct {
	Eps            float64
	MinSamples     int
	MatchThreshold float64
	// MinGroupSize is the smallest deduplicated group returned to callers.
	MinGroupSize int
}

func ParamsFromConfig(cfg config.ClusteringConfig) Params {
	return Params{
		Eps:            cfg.Eps,
		MinSamples:     cfg.MinSamples,
		MatchThreshold: cfg.MatchThreshold,
		MinGroupSize:   cfg.MinGroupSize,
	}
}

// Group is one resolved cluster with its (deduplicated) member detections.
type Group struct {
	Label       string
	ClusterID   int64
	ClusterName string
	Members     []models.FaceDetection
}

type candidate struct {
	label    string
	members  []models.FaceDetection
	centroid []float64
}

type Engine struct {
	store  Store
	params Params
}

func NewEngine(store Store, params Params) *Engine {
	return &Engine{store: store, params: params}
}

// Run performs one clustering pass for a user. A persistence error aborts the
// pass; writes made earlier in the same pass stay in place.
func (e *Engine) Run(ctx context.Context, userID uuid.UUID) ([]Group, error) {
	dets, err := e.store.GetFaceDetections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load detections: %w", err)
	}
	if len(dets) == 0 {
		return nil, nil
	}

	points := make([][]float64, len(dets))
	for i, d := range dets {
		if len(d.Embedding) != len(dets[0].Embedding) {
			return nil, fmt.Errorf("detection %d: embedding dimension %d, want %d", d.ID, len(d.Embedding), len(dets[0].Embedding))
		}
		points[i] = normalize(toFloat64(d.Embedding))
	}

	labels := DBSCAN(points, e.params.Eps, e.params.MinSamples)
	candidates := buildCandidates(dets, labels)

	// pool holds persisted centroids not yet matched in this pass. It stays
	// empty on a cold start, so every candidate gets a new centroid.
	pool := make(map[int64]models.ClusterCentroid)
	if warmStart(dets) {
		cents, err := e.store.GetClusterCentroids(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load centroids: %w", err)
		}
		for _, c := range cents {
			pool[c.ID] = c
		}
	}

	slog.Debug("clustering pass",
		"user_id", userID, "detections", len(dets), "candidates", len(candidates), "centroids", len(pool))

	groups := make([]Group, 0, len(candidates))
	for _, c := range candidates {
		g, err := e.resolve(ctx, userID, c, pool)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return filterGroups(groups, e.params.MinGroupSize), nil
}

// resolve assigns a candidate to its best unmatched centroid, or to a new one.
func (e *Engine) resolve(ctx context.Context, userID uuid.UUID, c candidate, pool map[int64]models.ClusterCentroid) (Group, error) {
	ids := make([]int64, len(c.members))
	for i, m := range c.members {
		ids[i] = m.ID
	}

	if match, ok := bestMatch(c.centroid, pool, e.params.MatchThreshold); ok {
		delete(pool, match.ID)
		if err := e.store.AssignDetections(ctx, match.ID, ids); err != nil {
			return Group{}, fmt.Errorf("reassign %s to cluster %d: %w", c.label, match.ID, err)
		}
		observability.CentroidsResolved.WithLabelValues("matched").Inc()
		return Group{Label: c.label, ClusterID: match.ID, ClusterName: match.Name, Members: c.members}, nil
	}

	name := c.label
	id, err := e.store.CreateCentroid(ctx, userID, name, toFloat32(c.centroid))
	if err != nil {
		return Group{}, fmt.Errorf("create centroid for %s: %w", c.label, err)
	}
	if err := e.store.AssignDetections(ctx, id, ids); err != nil {
		return Group{}, fmt.Errorf("assign %s to cluster %d: %w", c.label, id, err)
	}
	observability.CentroidsResolved.WithLabelValues("created").Inc()
	return Group{Label: c.label, ClusterID: id, ClusterName: name, Members: c.members}, nil
}

func warmStart(dets []models.FaceDetection) bool {
	for _, d := range dets {
		if d.ClusterID != nil {
			return true
		}
	}
	return false
}

// buildCandidates returns dense clusters by ascending label, then one singleton
// candidate per noise point in detection order.
func buildCandidates(dets []models.FaceDetection, labels []int) []candidate {
	byLabel := make(map[int][]models.FaceDetection)
	var noise []models.FaceDetection
	for i, l := range labels {
		if l == Noise {
			noise = append(noise, dets[i])
			continue
		}
		byLabel[l] = append(byLabel[l], dets[i])
	}

	keys := make([]int, 0, len(byLabel))
	for l := range byLabel {
		keys = append(keys, l)
	}
	sort.Ints(keys)

	out := make([]candidate, 0, len(keys)+len(noise))
	for _, l := range keys {
		members := byLabel[l]
		vecs := make([][]float64, len(members))
		for i, m := range members {
			vecs[i] = toFloat64(m.Embedding)
		}
		out = append(out, candidate{
			label:    "Person " + strconv.Itoa(l),
			members:  members,
			centroid: mean(vecs),
		})
	}
	for _, d := range noise {
		out = append(out, candidate{
			label:    "Noise " + strconv.FormatInt(d.ID, 10),
			members:  []models.FaceDetection{d},
			centroid: toFloat64(d.Embedding),
		})
	}
	return out
}

// bestMatch returns the unmatched centroid most similar to vec when the
// similarity reaches threshold. Ties go to the lowest id.
func bestMatch(vec []float64, pool map[int64]models.ClusterCentroid, threshold float64) (models.ClusterCentroid, bool) {
	ids := make([]int64, 0, len(pool))
	for id := range pool {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var (
		best    models.ClusterCentroid
		bestSim float64
		found   bool
	)
	for _, id := range ids {
		c := pool[id]
		sim := cosine(vec, toFloat64(c.Centroid))
		if !found || sim > bestSim {
			best, bestSim, found = c, sim, true
		}
	}
	if !found || bestSim < threshold {
		return models.ClusterCentroid{}, false
	}
	return best, true
}

func filterGroups(groups []Group, minSize int) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		g.Members = Dedup(g.Members)
		if len(g.Members) >= minSize {
			out = append(out, g)
		}
	}
	return out
}
