package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

// ConfigSource yields the active provider configuration, nil when none.
type ConfigSource interface {
	Get(ctx context.Context) (*domain.ProviderConfig, error)
	Invalidate()
}

// ProviderResolver builds the client for a configuration
type ProviderResolver interface {
	Provider(ctx context.Context, cfg *domain.ProviderConfig) (provider.FaceProvider, error)
}

// ImageLoader resolves image references to bytes
type ImageLoader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

type EmbeddingRepositoryInterface interface {
	Get(ctx context.Context, referenceID uuid.UUID) (*domain.FaceEmbeddingRecord, error)
	Upsert(ctx context.Context, record *domain.FaceEmbeddingRecord) error
	ListAllWithPhotos(ctx context.Context) ([]domain.FaceEmbeddingRecord, error)
	ListFeatures(ctx context.Context, providerType domain.ProviderType) ([]domain.FaceEmbeddingRecord, error)
}

type ReferenceRepositoryInterface interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.ReferenceStub, error)
	ListWithPhotos(ctx context.Context) ([]domain.ReferenceStub, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ReferenceStub, error)
}

// activeProvider resolves the configured provider or ErrNoActiveProvider.
func activeProvider(ctx context.Context, configs ConfigSource, providers ProviderResolver) (*domain.ProviderConfig, provider.FaceProvider, error) {
	cfg, err := configs.Get(ctx)
	if err != nil || cfg == nil {
		return nil, nil, domain.ErrNoActiveProvider
	}
	p, err := providers.Provider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, p, nil
}

// lazyImage memoizes the first successful load of ref.
func lazyImage(images ImageLoader, ref string, preloaded []byte) provider.ImageFunc {
	data := preloaded
	return func(ctx context.Context) ([]byte, error) {
		if data != nil {
			return data, nil
		}
		b, err := images.Load(ctx, ref)
		if err != nil {
			return nil, err
		}
		data = b
		return data, nil
	}
}

// storeFaceID upserts record. When p keeps indexed faces, the identifier the
// record displaces is deleted from the provider afterwards.
func storeFaceID(ctx context.Context, embeddings EmbeddingRepositoryInterface, p provider.FaceProvider, record *domain.FaceEmbeddingRecord, logger *slog.Logger) error {
	_, releasable := provider.As[provider.Releaser](p)

	var previous domain.FaceID
	var hasPrevious bool
	if releasable {
		existing, err := embeddings.Get(ctx, record.ReferenceID)
		switch {
		case err == nil:
			previous, hasPrevious = existing.StoredFaceID()
		case !errors.Is(err, domain.ErrEmbeddingNotFound):
			logger.Warn("failed to read previous face id",
				"reference_id", record.ReferenceID,
				"error", err,
			)
		}
	}

	if err := embeddings.Upsert(ctx, record); err != nil {
		return err
	}

	current, _ := record.StoredFaceID()
	if hasPrevious && previous.Provider == p.Type() && previous.Value != current.Value {
		releaseFaceID(ctx, p, previous, logger)
	}
	return nil
}

// releaseFaceID deletes id from providers that keep indexed faces. It runs
// even when ctx is already cancelled.
func releaseFaceID(ctx context.Context, p provider.FaceProvider, id domain.FaceID, logger *slog.Logger) {
	releaser, ok := provider.As[provider.Releaser](p)
	if !ok {
		return
	}

	if err := releaser.Release(context.WithoutCancel(ctx), id); err != nil {
		logger.Warn("failed to release face id",
			"provider", id.Provider,
			"face_id", id.Value,
			"error", err,
		)
	}
}
