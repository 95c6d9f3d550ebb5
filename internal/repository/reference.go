package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

// ReferenceRepository reads reference subjects. It never writes them.
type ReferenceRepository struct {
	pool PgxPool
}

func NewReferenceRepository(pool PgxPool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

const referenceColumns = `id, subject_name, COALESCE(subject_contact, ''), COALESCE(photo_url, '')`

func (r *ReferenceRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ReferenceStub, error) {
	query := `SELECT ` + referenceColumns + ` FROM relationships WHERE id = $1`

	var ref domain.ReferenceStub
	err := r.pool.QueryRow(ctx, query, id).Scan(&ref.ID, &ref.SubjectName, &ref.SubjectContact, &ref.PhotoURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reference: %w", err)
	}
	return &ref, nil
}

func (r *ReferenceRepository) ListWithPhotos(ctx context.Context) ([]domain.ReferenceStub, error) {
	query := `
		SELECT ` + referenceColumns + `
		FROM relationships
		WHERE photo_url IS NOT NULL AND photo_url <> ''
		ORDER BY id
	`

	refs, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list references with photos: %w", err)
	}
	return refs, nil
}

// ListByIDs returns the references among ids that have a photo.
func (r *ReferenceRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ReferenceStub, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + referenceColumns + `
		FROM relationships
		WHERE id = ANY($1) AND photo_url IS NOT NULL AND photo_url <> ''
		ORDER BY id
	`

	refs, err := r.list(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list references by id: %w", err)
	}
	return refs, nil
}

func (r *ReferenceRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.ReferenceStub, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []domain.ReferenceStub
	for rows.Next() {
		var ref domain.ReferenceStub
		if err := rows.Scan(&ref.ID, &ref.SubjectName, &ref.SubjectContact, &ref.PhotoURL); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
