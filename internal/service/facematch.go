package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facematch/internal/audit"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

// FaceMatchService exposes the face matching operations to the HTTP API,
// the event consumer and the operator CLI.
type FaceMatchService struct {
	configs     ConfigSource
	providers   ProviderResolver
	references  ReferenceRepositoryInterface
	embeddings  EmbeddingRepositoryInterface
	images      ImageLoader
	search      *SearchEngine
	regenerator *Regenerator
	audit       audit.Logger
	logger      *slog.Logger
}

func NewFaceMatchService(
	configs ConfigSource,
	providers ProviderResolver,
	references ReferenceRepositoryInterface,
	embeddings EmbeddingRepositoryInterface,
	images ImageLoader,
	search *SearchEngine,
	regenerator *Regenerator,
	auditLogger audit.Logger,
	logger *slog.Logger,
) *FaceMatchService {
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &FaceMatchService{
		configs:     configs,
		providers:   providers,
		references:  references,
		embeddings:  embeddings,
		images:      images,
		search:      search,
		regenerator: regenerator,
		audit:       auditLogger,
		logger:      logger,
	}
}

// ActiveProvider returns the active configuration or ErrNoActiveProvider.
func (s *FaceMatchService) ActiveProvider(ctx context.Context) (*domain.ProviderConfig, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil || cfg == nil {
		return nil, domain.ErrNoActiveProvider
	}
	return cfg, nil
}

// ExtractFaceFeatures returns the active provider's identifier for the face
// in imageRef.
func (s *FaceMatchService) ExtractFaceFeatures(ctx context.Context, imageRef string) (domain.FaceID, error) {
	_, p, err := activeProvider(ctx, s.configs, s.providers)
	if err != nil {
		return domain.FaceID{}, err
	}

	img, err := s.images.Load(ctx, imageRef)
	if err != nil {
		return domain.FaceID{}, err
	}

	id, err := p.Extract(ctx, img)
	if err != nil {
		return domain.FaceID{}, fmt.Errorf("extract face features: %w", err)
	}
	return id, nil
}

// SearchByFace ranks stored references against the face in imageRef.
func (s *FaceMatchService) SearchByFace(ctx context.Context, imageRef string, threshold *float64) ([]domain.FaceMatch, error) {
	if _, err := s.ActiveProvider(ctx); err != nil {
		return nil, err
	}
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	img, err := s.images.Load(ctx, imageRef)
	if err != nil {
		return nil, err
	}

	matches, err := s.search.Search(ctx, img, threshold)
	audit.Record(ctx, s.audit, audit.EventFaceSearched, s.providerName(ctx), "", err, map[string]string{
		"matches": strconv.Itoa(len(matches)),
	})
	return matches, err
}

// StoreFaceEmbedding derives and stores the identifier for a reference.
// photoRef defaults to the reference's photo. Extraction failures are logged
// and reported as false without an error.
func (s *FaceMatchService) StoreFaceEmbedding(ctx context.Context, referenceID uuid.UUID, photoRef string) (bool, error) {
	_, p, err := activeProvider(ctx, s.configs, s.providers)
	if err != nil {
		return false, err
	}

	ref, err := s.references.Get(ctx, referenceID)
	if err != nil {
		return false, err
	}
	if photoRef == "" {
		photoRef = ref.PhotoURL
	}
	if photoRef == "" {
		return false, domain.ErrValidationFailed.WithError(fmt.Errorf("reference %s has no photo", referenceID))
	}

	var id domain.FaceID
	img, err := s.images.Load(ctx, photoRef)
	if err == nil {
		id, err = p.Extract(ctx, img)
	}
	if err != nil {
		s.logger.Error("failed to extract reference face",
			"reference_id", referenceID,
			"provider", p.Type(),
			"error", err,
		)
		audit.Record(ctx, s.audit, audit.EventEmbeddingStored, string(p.Type()), referenceID.String(), err, nil)
		return false, nil
	}

	record := &domain.FaceEmbeddingRecord{
		ReferenceID:    ref.ID,
		SubjectName:    ref.SubjectName,
		SubjectContact: ref.SubjectContact,
		PhotoURL:       photoRef,
	}
	record.SetFaceID(id)

	err = storeFaceID(ctx, s.embeddings, p, record, s.logger)
	audit.Record(ctx, s.audit, audit.EventEmbeddingStored, string(p.Type()), referenceID.String(), err, nil)
	if err != nil {
		releaseFaceID(ctx, p, id, s.logger)
		return false, fmt.Errorf("store face embedding: %w", err)
	}
	return true, nil
}

// RegenerateAllFaceEmbeddings recomputes every stored identifier.
func (s *FaceMatchService) RegenerateAllFaceEmbeddings(ctx context.Context) (*domain.RegenerationReport, error) {
	report, err := s.regenerator.RegenerateAll(ctx)
	s.auditRegeneration(ctx, report, err)
	return report, err
}

// RegenerateFaceEmbeddings recomputes the identifiers of the given references.
func (s *FaceMatchService) RegenerateFaceEmbeddings(ctx context.Context, ids []uuid.UUID) (*domain.RegenerationReport, error) {
	report, err := s.regenerator.Regenerate(ctx, ids)
	s.auditRegeneration(ctx, report, err)
	return report, err
}

// ProviderChanged drops the cached configuration and regenerates every
// identifier for the newly active provider.
func (s *FaceMatchService) ProviderChanged(ctx context.Context) (*domain.RegenerationReport, error) {
	s.configs.Invalidate()
	return s.RegenerateAllFaceEmbeddings(ctx)
}

func (s *FaceMatchService) auditRegeneration(ctx context.Context, report *domain.RegenerationReport, err error) {
	var metadata map[string]string
	if report != nil {
		metadata = map[string]string{
			"total":   strconv.Itoa(report.Total),
			"success": strconv.Itoa(report.Success),
			"failed":  strconv.Itoa(report.Failed),
		}
	}
	audit.Record(ctx, s.audit, audit.EventEmbeddingsRegenerated, s.providerName(ctx), "", err, metadata)
}

func (s *FaceMatchService) providerName(ctx context.Context) string {
	cfg, err := s.configs.Get(ctx)
	if err != nil || cfg == nil {
		return ""
	}
	return string(cfg.Type)
}
