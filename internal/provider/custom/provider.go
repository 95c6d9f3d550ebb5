package custom

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

// Provider implements provider.FaceProvider over a self hosted embedding
// service. The face identifier is the embedding itself, so identifiers
// never expire and comparisons are computed locally.
type Provider struct {
	client *Client
	now    func() time.Time
}

// NewProvider creates a new custom provider
func NewProvider(config Config) (*Provider, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, domain.ErrProviderConfigInvalid.WithError(ErrMissingEndpoint)
	}
	return &Provider{
		client: NewClient(config),
		now:    time.Now,
	}, nil
}

func (p *Provider) Type() domain.ProviderType {
	return domain.ProviderCustom
}

// Extract returns the embedding of the largest face in image.
func (p *Provider) Extract(ctx context.Context, image []byte) (domain.FaceID, error) {
	resp, err := p.client.Represent(ctx, base64.StdEncoding.EncodeToString(image))
	if err != nil {
		return domain.FaceID{}, fmt.Errorf("extract face: %w", mapError(err))
	}

	best := -1
	for i, r := range resp.Results {
		if len(r.Embedding) == 0 {
			continue
		}
		if best < 0 || r.FacialArea.Area() > resp.Results[best].FacialArea.Area() {
			best = i
		}
	}
	if best < 0 {
		return domain.FaceID{}, domain.ErrNoFaceDetected
	}

	embedding := provider.NormalizeVector(resp.Results[best].Embedding)
	return domain.FaceID{
		Provider:  domain.ProviderCustom,
		Value:     provider.EncodeVector(embedding),
		IssuedAt:  p.now(),
		Embedding: embedding,
	}, nil
}

// Compare calculates cosine similarity between the two embeddings
func (p *Provider) Compare(ctx context.Context, query, reference domain.FaceID, _ provider.ImageFunc) (float64, error) {
	if err := provider.CheckOwnership(domain.ProviderCustom, query, reference); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
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
	if len(a) != len(b) {
		// Vectors from a different model are not comparable.
		return 0, domain.ErrIdentifierExpired.WithError(
			fmt.Errorf("embedding dimension %d != %d", len(a), len(b)))
	}

	return provider.Clamp(provider.CosineSimilarity(a, b)), nil
}

// mapError translates client errors into the domain taxonomy.
func mapError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.ErrProviderUnavailable.WithError(err)
	case isAuthError(err):
		return domain.ErrProviderConfigInvalid.WithError(err)
	case statusOf(err) == http.StatusBadRequest || statusOf(err) == http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(bodyOf(err)), "face") {
			return domain.ErrNoFaceDetected.WithError(err)
		}
		return domain.ErrImageDecode.WithError(err)
	default:
		return domain.ErrProviderUnavailable.WithError(err)
	}
}

// Ensure Provider implements provider.FaceProvider
var _ provider.FaceProvider = (*Provider)(nil)
