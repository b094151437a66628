//go:build integration

package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/photolabel/internal/config"
	"github.com/your-org/photolabel/internal/models"
)

func setupTestContainer(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	portNum, _ := strconv.Atoi(port.Port())

	store, err := NewPostgresStore(config.DatabaseConfig{
		Host: host, Port: portNum, Name: "testdb", User: "test", Password: "test",
		SSLMode: "disable", MaxConns: 5,
	})
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("create store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		container.Terminate(ctx)
		t.Fatalf("run migrations: %v", err)
	}

	return store, func() {
		store.Close()
		container.Terminate(ctx)
	}
}

func insertImage(t *testing.T, s *PostgresStore, uploader uuid.UUID, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO images (id, uploader_id, image_bucket_id, image_name) VALUES ($1, $2, 'bucket', $3)`,
		id, uploader, name)
	if err != nil {
		t.Fatalf("insert image: %v", err)
	}
	return id
}

func TestPostgresStore(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	user := uuid.New()
	imgID := insertImage(t, store, user, "a.jpg")

	t.Run("UnlabeledAndUpsert", func(t *testing.T) {
		jobs, err := store.ListUnlabeledImages(ctx)
		if err != nil {
			t.Fatalf("ListUnlabeledImages() error = %v", err)
		}
		if len(jobs) != 1 || jobs[0].ImageID != imgID.String() {
			t.Fatalf("ListUnlabeledImages() = %+v", jobs)
		}

		labels := models.Labels{Location: []models.LabelScore{{Label: "beach", Score: 0.9}}}
		emb := []float32{1, 0, 0}
		for i := 0; i < 2; i++ {
			img, err := store.UpsertImageLabels(ctx, jobs[0], labels, emb)
			if err != nil {
				t.Fatalf("UpsertImageLabels() error = %v", err)
			}
			if img.ID != imgID {
				t.Errorf("UpsertImageLabels() id = %s, want %s", img.ID, imgID)
			}
		}

		jobs, _ = store.ListUnlabeledImages(ctx)
		if len(jobs) != 0 {
			t.Errorf("unlabeled after upsert = %d, want 0", len(jobs))
		}

		matches, err := store.SearchImages(ctx, []float32{1, 0, 0}, &user, 5)
		if err != nil {
			t.Fatalf("SearchImages() error = %v", err)
		}
		if len(matches) != 1 || matches[0].Image.ID != imgID || matches[0].Score < 0.99 {
			t.Errorf("SearchImages() = %+v", matches)
		}
	})

	t.Run("FacesOncePerImage", func(t *testing.T) {
		pending, err := store.ListImagesWithoutFaces(ctx)
		if err != nil {
			t.Fatalf("ListImagesWithoutFaces() error = %v", err)
		}
		if len(pending) != 1 || pending[0].ID != imgID {
			t.Fatalf("ListImagesWithoutFaces() = %+v", pending)
		}

		faces := []models.DetectedFace{
			{BBox: []int32{1, 2, 3, 4}, Embedding: []float32{0, 1, 0}},
			{BBox: []int32{5, 6, 7, 8}, Embedding: []float32{0, 0, 1}},
		}
		saved, err := store.SaveFaceDetections(ctx, imgID, faces)
		if err != nil || !saved {
			t.Fatalf("SaveFaceDetections() = %v, %v", saved, err)
		}
		saved, err = store.SaveFaceDetections(ctx, imgID, faces)
		if err != nil || saved {
			t.Fatalf("second SaveFaceDetections() = %v, %v; want false, nil", saved, err)
		}
		if pending, _ := store.ListImagesWithoutFaces(ctx); len(pending) != 0 {
			t.Errorf("images without faces after save = %d, want 0", len(pending))
		}

		dets, err := store.GetFaceDetections(ctx, user)
		if err != nil {
			t.Fatalf("GetFaceDetections() error = %v", err)
		}
		if len(dets) != 2 {
			t.Fatalf("GetFaceDetections() = %d rows, want 2", len(dets))
		}
		if dets[0].ClusterID != nil || dets[0].Image.Name != "a.jpg" || len(dets[0].Embedding) != 3 {
			t.Errorf("detection = %+v", dets[0])
		}
	})

	t.Run("Centroids", func(t *testing.T) {
		id, err := store.CreateCentroid(ctx, user, "Person 0", []float32{0, 1, 0})
		if err != nil {
			t.Fatalf("CreateCentroid() error = %v", err)
		}
		dets, _ := store.GetFaceDetections(ctx, user)
		if err := store.AssignDetections(ctx, id, []int64{dets[0].ID, dets[1].ID}); err != nil {
			t.Fatalf("AssignDetections() error = %v", err)
		}

		cents, err := store.GetClusterCentroids(ctx, user)
		if err != nil {
			t.Fatalf("GetClusterCentroids() error = %v", err)
		}
		if len(cents) != 1 || cents[0].ID != id || cents[0].Name != "Person 0" {
			t.Errorf("GetClusterCentroids() = %+v", cents)
		}

		dets, _ = store.GetFaceDetections(ctx, user)
		for _, d := range dets {
			if d.ClusterID == nil || *d.ClusterID != id {
				t.Errorf("detection %d cluster = %v, want %d", d.ID, d.ClusterID, id)
			}
		}
	})
}
