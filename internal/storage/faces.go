package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/photolabel/internal/models"
)

// --- Face detections ---

// SaveFaceDetections stores the faces found in an image with no cluster assignment.
// It runs at most once per image: the second call sees is_face_detection set and
// returns false without writing.
func (s *PostgresStore) SaveFaceDetections(ctx context.Context, imageID uuid.UUID, faces []models.DetectedFace) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin face tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		done       bool
		uploaderID *uuid.UUID
	)
	err = tx.QueryRow(ctx,
		`SELECT is_face_detection, uploader_id FROM images WHERE id = $1 FOR UPDATE`, imageID,
	).Scan(&done, &uploaderID)
	if err == pgx.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock image %s: %w", imageID, err)
	}
	if done {
		return false, nil
	}

	batch := &pgx.Batch{}
	for _, f := range faces {
		batch.Queue(
			`INSERT INTO persons (image_id, user_id, coordinate, embedding) VALUES ($1, $2, $3, $4)`,
			imageID, uploaderID, f.BBox, pgvector.NewVector(f.Embedding),
		)
	}
	batch.Queue(`UPDATE images SET is_face_detection = true WHERE id = $1`, imageID)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("insert faces for %s: %w", imageID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit faces for %s: %w", imageID, err)
	}
	return true, nil
}

// GetFaceDetections returns every face detection of a user with its image metadata,
// ordered by detection id.
func (s *PostgresStore) GetFaceDetections(ctx context.Context, userID uuid.UUID) ([]models.FaceDetection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.embedding, p.coordinate, p.image_id, p.user_id, p.cluster_id,
		       i.created_at, i.image_bucket_id, i.image_name, i.labels
		FROM persons p
		JOIN images i ON i.id = p.image_id
		WHERE p.user_id = $1
		ORDER BY p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("get face detections: %w", err)
	}
	defer rows.Close()

	var out []models.FaceDetection
	for rows.Next() {
		var (
			d      models.FaceDetection
			vec    pgvector.Vector
			labels []byte
		)
		if err := rows.Scan(&d.ID, &vec, &d.BBox, &d.ImageID, &d.UserID, &d.ClusterID,
			&d.Image.CreatedAt, &d.Image.BucketID, &d.Image.Name, &labels); err != nil {
			return nil, fmt.Errorf("scan face detection: %w", err)
		}
		d.Embedding = vec.Slice()
		d.Image.ID = d.ImageID
		d.Image.Labels = labels
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Cluster centroids ---

func (s *PostgresStore) GetClusterCentroids(ctx context.Context, userID uuid.UUID) ([]models.ClusterCentroid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, centroid FROM clusters WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("get cluster centroids: %w", err)
	}
	defer rows.Close()

	var out []models.ClusterCentroid
	for rows.Next() {
		var (
			c   models.ClusterCentroid
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &vec); err != nil {
			return nil, fmt.Errorf("scan cluster centroid: %w", err)
		}
		c.Centroid = vec.Slice()
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCentroid inserts a centroid and returns its new id.
func (s *PostgresStore) CreateCentroid(ctx context.Context, userID uuid.UUID, name string, centroid []float32) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO clusters (user_id, name, centroid) VALUES ($1, $2, $3) RETURNING id`,
		userID, name, pgvector.NewVector(centroid),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create centroid: %w", err)
	}
	return id, nil
}

// AssignDetections points the given detections at a centroid.
func (s *PostgresStore) AssignDetections(ctx context.Context, clusterID int64, detectionIDs []int64) error {
	if len(detectionIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE persons SET cluster_id = $1 WHERE id = ANY($2)`, clusterID, detectionIDs)
	if err != nil {
		return fmt.Errorf("assign detections to cluster %d: %w", clusterID, err)
	}
	return nil
}
