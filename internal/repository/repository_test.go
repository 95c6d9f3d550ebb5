package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

func strPtr(s string) *string { return &s }

// ProviderConfigRepository Tests

func TestProviderConfigRepository_GetActive(t *testing.T) {
	configID := uuid.New()
	now := time.Now()
	columns := []string{
		"id", "name", "provider_type", "credentials", "similarity_threshold", "max_results", "is_active", "enabled", "updated_at",
	}

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		want      *domain.ProviderConfig
		wantErr   bool
	}{
		{
			name: "active config",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(columns).AddRow(
					configID,
					"azure primary",
					"azure",
					domain.Credentials{Endpoint: "https://face.example.com", APIKey: "secret"},
					0.75,
					5,
					true,
					true,
					now,
				)
				mock.ExpectQuery(`FROM face_provider_configs WHERE is_active = true AND enabled = true ORDER BY updated_at DESC, id LIMIT 1`).
					WillReturnRows(rows)
			},
			want: &domain.ProviderConfig{
				ID:                  configID,
				Name:                "azure primary",
				Type:                domain.ProviderAzure,
				SimilarityThreshold: 0.75,
				MaxResults:          5,
				IsActive:            true,
				Enabled:             true,
				Credentials:         domain.Credentials{Endpoint: "https://face.example.com", APIKey: "secret"},
				UpdatedAt:           now,
			},
		},
		{
			name: "no active config",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM face_provider_configs`).WillReturnError(pgx.ErrNoRows)
			},
			want: nil,
		},
		{
			name: "database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM face_provider_configs`).WillReturnError(errors.New("database connection error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			repo := NewProviderConfigRepository(mock)
			got, err := repo.GetActive(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "get active provider config")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// EmbeddingRepository Tests

var embeddingColumnNames = []string{
	"id", "subject_name", "subject_contact", "photo_url", "face_service_id", "face_service_type", "embedding", "updated_at",
}

func TestEmbeddingRepository_Get(t *testing.T) {
	refID := uuid.New()
	now := time.Now()

	t.Run("found with vector", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		vec := pgvector.NewVector([]float32{0.1, 0.2, 0.3})
		rows := pgxmock.NewRows(embeddingColumnNames).AddRow(
			refID, "Ana", "ana@example.com", "https://cdn.example.com/ana.jpg",
			strPtr("vec-id"), strPtr("custom"), &vec, &now,
		)
		mock.ExpectQuery(`FROM relationship_face_embeddings e JOIN relationships r ON r.id = e.relationship_id WHERE e.relationship_id = \$1`).
			WithArgs(refID).
			WillReturnRows(rows)

		repo := NewEmbeddingRepository(mock)
		got, err := repo.Get(context.Background(), refID)
		require.NoError(t, err)

		id, ok := got.StoredFaceID()
		require.True(t, ok)
		assert.Equal(t, domain.ProviderCustom, id.Provider)
		assert.Equal(t, "vec-id", id.Value)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
		assert.Equal(t, now, got.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM relationship_face_embeddings`).
			WithArgs(refID).
			WillReturnError(pgx.ErrNoRows)

		repo := NewEmbeddingRepository(mock)
		_, err = repo.Get(context.Background(), refID)
		assert.ErrorIs(t, err, domain.ErrEmbeddingNotFound)
	})
}

func TestEmbeddingRepository_Upsert(t *testing.T) {
	refID := uuid.New()

	tests := []struct {
		name      string
		record    func() *domain.FaceEmbeddingRecord
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "insert or update",
			record: func() *domain.FaceEmbeddingRecord {
				rec := &domain.FaceEmbeddingRecord{ReferenceID: refID}
				rec.SetFaceID(domain.FaceID{Provider: domain.ProviderAWS, Value: "aws-face-1"})
				return rec
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO relationship_face_embeddings .* ON CONFLICT \(relationship_id\) DO UPDATE`).
					WithArgs(refID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unknown reference",
			record: func() *domain.FaceEmbeddingRecord {
				return &domain.FaceEmbeddingRecord{ReferenceID: refID}
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO relationship_face_embeddings`).
					WithArgs(refID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: "23503"})
			},
			wantErr: domain.ErrReferenceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			rec := tt.record()
			err = NewEmbeddingRepository(mock).Upsert(context.Background(), rec)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.False(t, rec.UpdatedAt.IsZero())
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEmbeddingRepository_ListAllWithPhotos(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	withID, withoutID := uuid.New(), uuid.New()
	now := time.Now()

	rows := pgxmock.NewRows(embeddingColumnNames).
		AddRow(withID, "Ana", "", "https://cdn.example.com/a.jpg", strPtr("f1"), strPtr("aws"), (*pgvector.Vector)(nil), &now).
		AddRow(withoutID, "Bia", "", "s3://photos/b.jpg", (*string)(nil), (*string)(nil), (*pgvector.Vector)(nil), (*time.Time)(nil))

	mock.ExpectQuery(`FROM relationships r LEFT JOIN relationship_face_embeddings e`).
		WillReturnRows(rows)

	got, err := NewEmbeddingRepository(mock).ListAllWithPhotos(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	_, ok := got[0].StoredFaceID()
	assert.True(t, ok)
	_, ok = got[1].StoredFaceID()
	assert.False(t, ok)
	assert.Equal(t, "s3://photos/b.jpg", got[1].PhotoURL)
	assert.True(t, got[1].UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddingRepository_ListFeatures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows(embeddingColumnNames).
		AddRow(uuid.New(), "Ana", "", "", strPtr("az-1"), strPtr("azure"), (*pgvector.Vector)(nil), &now)

	mock.ExpectQuery(`WHERE e.face_service_type = \$1`).
		WithArgs("azure").
		WillReturnRows(rows)

	got, err := NewEmbeddingRepository(mock).ListFeatures(context.Background(), domain.ProviderAzure)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ProviderAzure, *got[0].FaceServiceType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddingRepository_ListError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE e.face_service_type`).
		WithArgs("aws").
		WillReturnError(errors.New("connection reset"))

	_, err = NewEmbeddingRepository(mock).ListFeatures(context.Background(), domain.ProviderAWS)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list face features")
}

// ReferenceRepository Tests

func TestReferenceRepository_Get(t *testing.T) {
	refID := uuid.New()

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows([]string{"id", "subject_name", "subject_contact", "photo_url"}).
			AddRow(refID, "Ana", "+5511999990000", "https://cdn.example.com/a.jpg")
		mock.ExpectQuery(`FROM relationships WHERE id = \$1`).WithArgs(refID).WillReturnRows(rows)

		got, err := NewReferenceRepository(mock).Get(context.Background(), refID)
		require.NoError(t, err)
		assert.Equal(t, &domain.ReferenceStub{
			ID:             refID,
			SubjectName:    "Ana",
			SubjectContact: "+5511999990000",
			PhotoURL:       "https://cdn.example.com/a.jpg",
		}, got)
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM relationships WHERE id = \$1`).WithArgs(refID).WillReturnError(pgx.ErrNoRows)

		_, err = NewReferenceRepository(mock).Get(context.Background(), refID)
		assert.ErrorIs(t, err, domain.ErrReferenceNotFound)
	})
}

func TestReferenceRepository_ListByIDs(t *testing.T) {
	t.Run("empty input makes no query", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		got, err := NewReferenceRepository(mock).ListByIDs(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("filters by ids", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		ids := []uuid.UUID{uuid.New(), uuid.New()}
		rows := pgxmock.NewRows([]string{"id", "subject_name", "subject_contact", "photo_url"}).
			AddRow(ids[0], "Ana", "", "https://cdn.example.com/a.jpg")
		mock.ExpectQuery(`WHERE id = ANY\(\$1\)`).WithArgs(ids).WillReturnRows(rows)

		got, err := NewReferenceRepository(mock).ListByIDs(context.Background(), ids)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, ids[0], got[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
