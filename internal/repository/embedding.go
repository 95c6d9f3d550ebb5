package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

const embeddingColumns = `
	r.id, r.subject_name, COALESCE(r.subject_contact, ''), COALESCE(r.photo_url, ''),
	e.face_service_id, e.face_service_type, e.embedding, e.updated_at
`

type EmbeddingRepository struct {
	pool PgxPool
}

func NewEmbeddingRepository(pool PgxPool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

func (r *EmbeddingRepository) Get(ctx context.Context, referenceID uuid.UUID) (*domain.FaceEmbeddingRecord, error) {
	query := `
		SELECT ` + embeddingColumns + `
		FROM relationship_face_embeddings e
		JOIN relationships r ON r.id = e.relationship_id
		WHERE e.relationship_id = $1
	`

	rec, err := scanEmbedding(r.pool.QueryRow(ctx, query, referenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEmbeddingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get face embedding: %w", err)
	}
	return rec, nil
}

// Upsert writes the record's face identifier, replacing any previous one.
func (r *EmbeddingRepository) Upsert(ctx context.Context, record *domain.FaceEmbeddingRecord) error {
	query := `
		INSERT INTO relationship_face_embeddings (relationship_id, face_service_id, face_service_type, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (relationship_id) DO UPDATE
		SET face_service_id = EXCLUDED.face_service_id,
		    face_service_type = EXCLUDED.face_service_type,
		    embedding = EXCLUDED.embedding,
		    updated_at = EXCLUDED.updated_at
	`

	var serviceType *string
	if record.FaceServiceType != nil {
		s := string(*record.FaceServiceType)
		serviceType = &s
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		record.ReferenceID,
		record.FaceServiceID,
		serviceType,
		toVector(record.Embedding),
		record.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrReferenceNotFound
		}
		return fmt.Errorf("upsert face embedding: %w", err)
	}
	return nil
}

// ListAllWithPhotos returns every reference with a photo, with its stored
// identifier when one exists.
func (r *EmbeddingRepository) ListAllWithPhotos(ctx context.Context) ([]domain.FaceEmbeddingRecord, error) {
	query := `
		SELECT ` + embeddingColumns + `
		FROM relationships r
		LEFT JOIN relationship_face_embeddings e ON e.relationship_id = r.id
		WHERE r.photo_url IS NOT NULL AND r.photo_url <> ''
		ORDER BY r.id
	`

	records, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list references with photos: %w", err)
	}
	return records, nil
}

// ListFeatures returns the references whose stored identifier was issued by
// providerType.
func (r *EmbeddingRepository) ListFeatures(ctx context.Context, providerType domain.ProviderType) ([]domain.FaceEmbeddingRecord, error) {
	query := `
		SELECT ` + embeddingColumns + `
		FROM relationship_face_embeddings e
		JOIN relationships r ON r.id = e.relationship_id
		WHERE e.face_service_type = $1 AND e.face_service_id IS NOT NULL
		ORDER BY r.id
	`

	records, err := r.list(ctx, query, string(providerType))
	if err != nil {
		return nil, fmt.Errorf("list face features: %w", err)
	}
	return records, nil
}

func (r *EmbeddingRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.FaceEmbeddingRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.FaceEmbeddingRecord
	for rows.Next() {
		rec, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanEmbedding(row pgx.Row) (*domain.FaceEmbeddingRecord, error) {
	var (
		rec         domain.FaceEmbeddingRecord
		serviceID   *string
		serviceType *string
		embedding   *pgvector.Vector
		updatedAt   *time.Time
	)

	err := row.Scan(
		&rec.ReferenceID,
		&rec.SubjectName,
		&rec.SubjectContact,
		&rec.PhotoURL,
		&serviceID,
		&serviceType,
		&embedding,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.FaceServiceID = serviceID
	if serviceType != nil {
		t := domain.ProviderType(*serviceType)
		rec.FaceServiceType = &t
	}
	rec.Embedding = fromVector(embedding)
	if updatedAt != nil {
		rec.UpdatedAt = *updatedAt
	}
	return &rec, nil
}
