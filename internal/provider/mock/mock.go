package mock

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

const (
	embeddingDimension = 128
	minImageSize       = 1000
)

// Provider implementa provider.FaceProvider para testes e desenvolvimento.
// Identical images always produce identical identifiers.
type Provider struct {
	now func() time.Time
}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{now: time.Now}
}

func (p *Provider) Type() domain.ProviderType {
	return domain.ProviderMock
}

// Extract gera embedding determinístico baseado no hash da imagem
func (p *Provider) Extract(ctx context.Context, image []byte) (domain.FaceID, error) {
	if err := ctx.Err(); err != nil {
		return domain.FaceID{}, err
	}
	if len(image) < minImageSize {
		return domain.FaceID{}, domain.ErrNoFaceDetected
	}

	embedding := generateEmbedding(image)
	return domain.FaceID{
		Provider:  domain.ProviderMock,
		Value:     provider.EncodeVector(embedding),
		IssuedAt:  p.now(),
		Embedding: embedding,
	}, nil
}

// Compare calcula similaridade coseno entre embeddings
func (p *Provider) Compare(ctx context.Context, query, reference domain.FaceID, _ provider.ImageFunc) (float64, error) {
	if err := provider.CheckOwnership(domain.ProviderMock, query, reference); err != nil {
		return 0, err
	}

	a, err := provider.VectorOf(query.Embedding, query.Value)
	if err != nil {
		return 0, domain.ErrIdentifierExpired.WithError(err)
	}
	b, err := provider.VectorOf(reference.Embedding, reference.Value)
	if err != nil {
		return 0, domain.ErrIdentifierExpired.WithError(err)
	}

	return provider.Clamp(provider.CosineSimilarity(a, b)), nil
}

// generateEmbedding gera embedding determinístico baseado no hash da imagem
func generateEmbedding(image []byte) []float32 {
	hash := sha256.Sum256(image)
	embedding := make([]float32, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		embedding[i] = (float32(hash[idx])/255.0)*2 - 1
	}

	return provider.NormalizeVector(embedding)
}

var _ provider.FaceProvider = (*Provider)(nil)
