package clustering

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/photolabel/internal/models"
)

// memStore is an in-memory Store with error injection.
type memStore struct {
	mu        sync.Mutex
	dets      []models.FaceDetection
	centroids []models.ClusterCentroid
	nextID    int64

	createCalls int
	assignCalls int

	// failCreateAt makes the n-th CreateCentroid call (1-based) fail.
	failCreateAt int
	loadErr      error
	// gate, when set, blocks GetFaceDetections until closed.
	gate chan struct{}
}

var errInjected = errors.New("injected failure")

func newMemStore(dets []models.FaceDetection, centroids ...models.ClusterCentroid) *memStore {
	s := &memStore{dets: dets, centroids: centroids, nextID: 100}
	return s
}

func (s *memStore) GetFaceDetections(_ context.Context, _ uuid.UUID) ([]models.FaceDetection, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]models.FaceDetection, len(s.dets))
	copy(out, s.dets)
	return out, nil
}

func (s *memStore) GetClusterCentroids(_ context.Context, _ uuid.UUID) ([]models.ClusterCentroid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ClusterCentroid, len(s.centroids))
	copy(out, s.centroids)
	return out, nil
}

func (s *memStore) CreateCentroid(_ context.Context, userID uuid.UUID, name string, centroid []float32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.failCreateAt > 0 && s.createCalls == s.failCreateAt {
		return 0, errInjected
	}
	s.nextID++
	s.centroids = append(s.centroids, models.ClusterCentroid{ID: s.nextID, UserID: userID, Name: name, Centroid: centroid})
	return s.nextID, nil
}

func (s *memStore) AssignDetections(_ context.Context, clusterID int64, detectionIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignCalls++
	for _, id := range detectionIDs {
		for i := range s.dets {
			if s.dets[i].ID == id {
				cid := clusterID
				s.dets[i].ClusterID = &cid
			}
		}
	}
	return nil
}

func (s *memStore) clusterOf(detID int64) *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dets {
		if d.ID == detID {
			return d.ClusterID
		}
	}
	return nil
}

func (s *memStore) centroidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.centroids)
}
