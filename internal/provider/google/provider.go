package google

import (
	"context"
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

// Provider implements provider.FaceProvider on Cloud Vision face detection.
// Vision has no identification API, so the face identifier is a landmark
// geometry descriptor compared locally. Identifiers never expire.
type Provider struct {
	client *Client
	now    func() time.Time
}

var _ provider.FaceProvider = (*Provider)(nil)

// NewProvider creates a new Cloud Vision provider
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, domain.ErrProviderConfigInvalid.WithError(fmt.Errorf("google api key is required"))
	}
	return &Provider{client: NewClient(config), now: time.Now}, nil
}

func (p *Provider) Type() domain.ProviderType {
	return domain.ProviderGoogle
}

// Extract returns the descriptor of the largest face with a full landmark set.
func (p *Provider) Extract(ctx context.Context, image []byte) (domain.FaceID, error) {
	faces, err := p.client.DetectFaces(ctx, image)
	if err != nil {
		return domain.FaceID{}, fmt.Errorf("detect faces: %w", mapError(err))
	}

	var (
		best     []float32
		bestArea = -1.0
	)
	for _, f := range faces {
		d, err := Descriptor(f)
		if err != nil {
			continue
		}
		if area := f.BoundingPoly.Area(); area > bestArea {
			best, bestArea = d, area
		}
	}
	if best == nil {
		return domain.FaceID{}, domain.ErrNoFaceDetected
	}

	return domain.FaceID{
		Provider:  domain.ProviderGoogle,
		Value:     provider.EncodeVector(best),
		IssuedAt:  p.now(),
		Embedding: best,
	}, nil
}

func (p *Provider) Compare(ctx context.Context, query, reference domain.FaceID, _ provider.ImageFunc) (float64, error) {
	if err := provider.CheckOwnership(domain.ProviderGoogle, query, reference); err != nil {
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
		return 0, domain.ErrIdentifierExpired.WithError(
			fmt.Errorf("descriptor length %d != %d", len(a), len(b)))
	}

	return provider.Clamp(Similarity(a, b)), nil
}
