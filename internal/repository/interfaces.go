package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

// PgxPool is the subset of pgxpool.Pool used by repositories (satisfied by pgxmock)
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// ProviderConfigRepositoryInterface reads the active provider configuration
type ProviderConfigRepositoryInterface interface {
	GetActive(ctx context.Context) (*domain.ProviderConfig, error)
}

// EmbeddingRepositoryInterface defines operations for stored face identifiers
type EmbeddingRepositoryInterface interface {
	Get(ctx context.Context, referenceID uuid.UUID) (*domain.FaceEmbeddingRecord, error)
	Upsert(ctx context.Context, record *domain.FaceEmbeddingRecord) error
	ListAllWithPhotos(ctx context.Context) ([]domain.FaceEmbeddingRecord, error)
	ListFeatures(ctx context.Context, providerType domain.ProviderType) ([]domain.FaceEmbeddingRecord, error)
}

// ReferenceRepositoryInterface defines read access to reference subjects
type ReferenceRepositoryInterface interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.ReferenceStub, error)
	ListWithPhotos(ctx context.Context) ([]domain.ReferenceStub, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ReferenceStub, error)
}
