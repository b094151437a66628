package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/photolabel/internal/config"
	"github.com/your-org/photolabel/internal/models"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying pool for components that need a dedicated connection.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Images ---

const imageColumns = `id, uploader_id, image_bucket_id, image_name, is_face_detection, created_at`

func scanImage(row pgx.Row) (*models.Image, error) {
	var img models.Image
	if err := row.Scan(&img.ID, &img.UploaderID, &img.BucketID, &img.Name, &img.FaceDetected, &img.CreatedAt); err != nil {
		return nil, err
	}
	return &img, nil
}

// imageUUID maps a job image id to the row id used when the row does not exist yet.
// Non-UUID ids map deterministically from bucket and name.
func imageUUID(job models.Job) uuid.UUID {
	if id, err := uuid.Parse(job.ImageID); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(job.BucketID+"/"+job.ObjectName))
}

// UpsertImageLabels stores labels and the image embedding keyed by (bucket, name).
// Re-running it for the same image overwrites with the latest result.
func (s *PostgresStore) UpsertImageLabels(ctx context.Context, job models.Job, labels models.Labels, embedding []float32) (*models.Image, error) {
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return nil, fmt.Errorf("marshal labels: %w", err)
	}

	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}

	img, err := scanImage(s.pool.QueryRow(ctx, `
		INSERT INTO images (id, image_bucket_id, image_name, labels, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (image_bucket_id, image_name)
		DO UPDATE SET labels = EXCLUDED.labels, embedding = EXCLUDED.embedding
		RETURNING `+imageColumns,
		imageUUID(job), job.BucketID, job.ObjectName, labelsJSON, vec,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert image labels %s/%s: %w", job.BucketID, job.ObjectName, err)
	}
	return img, nil
}

func (s *PostgresStore) GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	img, err := scanImage(s.pool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// ListUnlabeledImages returns label jobs for every image that has no labels yet, oldest first.
func (s *PostgresStore) ListUnlabeledImages(ctx context.Context) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, image_bucket_id, image_name FROM images WHERE labels IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list unlabeled images: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var (
			id  uuid.UUID
			job models.Job
		)
		if err := rows.Scan(&id, &job.BucketID, &job.ObjectName); err != nil {
			return nil, fmt.Errorf("scan unlabeled image: %w", err)
		}
		job.ImageID = id.String()
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListImagesWithoutFaces returns labeled images whose faces were never
// detected, oldest first.
func (s *PostgresStore) ListImagesWithoutFaces(ctx context.Context) ([]models.Image, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+imageColumns+` FROM images
		WHERE is_face_detection = false AND labels IS NOT NULL
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list images without faces: %w", err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

// SearchImages ranks labeled images by cosine similarity to a query embedding.
func (s *PostgresStore) SearchImages(ctx context.Context, embedding []float32, uploaderID *uuid.UUID, limit int) ([]models.ImageMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	vec := pgvector.NewVector(embedding)

	query := `
		SELECT id, uploader_id, image_bucket_id, image_name, is_face_detection, created_at,
		       labels, 1 - (embedding <=> $1) AS score
		FROM images
		WHERE embedding IS NOT NULL`
	args := []interface{}{vec}
	if uploaderID != nil {
		query += ` AND uploader_id = $2`
		args = append(args, *uploaderID)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search images: %w", err)
	}
	defer rows.Close()

	var matches []models.ImageMatch
	for rows.Next() {
		var (
			m      models.ImageMatch
			labels []byte
		)
		if err := rows.Scan(&m.Image.ID, &m.Image.UploaderID, &m.Image.BucketID, &m.Image.Name,
			&m.Image.FaceDetected, &m.Image.CreatedAt, &labels, &m.Score); err != nil {
			return nil, fmt.Errorf("scan image match: %w", err)
		}
		m.Labels = labels
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
