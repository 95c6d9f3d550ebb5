package azure

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

// FaceIDTTL is how long the Face API keeps a detected faceId.
const FaceIDTTL = 24 * time.Hour

// expirySafety re-detects slightly before the service forgets the id.
const expirySafety = 10 * time.Minute

const refreshedCacheSize = 1024

// Provider implements provider.FaceProvider over the Azure Face API.
// Face ids are transient: a reference id older than FaceIDTTL is detected
// again from the reference photo before verifying, and the fresh id is kept
// until it expires in turn.
type Provider struct {
	client *Client
	now    func() time.Time

	mu        sync.Mutex
	refreshed map[string]domain.FaceID
}

var (
	_ provider.FaceProvider = (*Provider)(nil)
	_ provider.Refresher    = (*Provider)(nil)
)

// NewProvider creates a new Azure provider
func NewProvider(config Config) (*Provider, error) {
	if strings.TrimSpace(config.Endpoint) == "" || config.SubscriptionKey == "" {
		return nil, domain.ErrProviderConfigInvalid.WithError(
			fmt.Errorf("azure endpoint and subscription key are required"))
	}
	return &Provider{
		client:    NewClient(config),
		now:       time.Now,
		refreshed: make(map[string]domain.FaceID),
	}, nil
}

func (p *Provider) Type() domain.ProviderType {
	return domain.ProviderAzure
}

// Extract returns the faceId of the largest detected face.
func (p *Provider) Extract(ctx context.Context, image []byte) (domain.FaceID, error) {
	faces, err := p.client.Detect(ctx, image)
	if err != nil {
		return domain.FaceID{}, fmt.Errorf("detect: %w", mapError(err))
	}

	best := -1
	for i, f := range faces {
		if f.FaceID == "" {
			continue
		}
		if best < 0 || f.FaceRectangle.Area() > faces[best].FaceRectangle.Area() {
			best = i
		}
	}
	if best < 0 {
		return domain.FaceID{}, domain.ErrNoFaceDetected
	}

	return domain.FaceID{
		Provider: domain.ProviderAzure,
		Value:    faces[best].FaceID,
		IssuedAt: p.now(),
	}, nil
}

// Compare verifies the two faces. The reference is re-detected from
// referenceImage when its id is past the service retention window, or once
// when the service no longer knows it.
func (p *Provider) Compare(ctx context.Context, query, reference domain.FaceID, referenceImage provider.ImageFunc) (float64, error) {
	if err := provider.CheckOwnership(domain.ProviderAzure, query, reference); err != nil {
		return 0, err
	}

	stored := reference
	if fresh, ok := p.Refreshed(stored); ok {
		reference = fresh
	}

	refreshed := false
	if referenceImage != nil && p.expired(reference) {
		fresh, err := p.redetect(ctx, stored, referenceImage)
		if err != nil {
			return 0, err
		}
		reference, refreshed = fresh, true
	}

	result, err := p.client.Verify(ctx, query.Value, reference.Value)
	if err != nil && isFaceNotFound(err) && referenceImage != nil && !refreshed {
		fresh, rerr := p.redetect(ctx, stored, referenceImage)
		if rerr != nil {
			return 0, rerr
		}
		result, err = p.client.Verify(ctx, query.Value, fresh.Value)
	}
	if err != nil {
		// With a freshly detected reference a missing face can only be the query.
		return 0, fmt.Errorf("verify: %w", mapError(err))
	}

	return provider.Clamp(result.Confidence), nil
}

func (p *Provider) expired(id domain.FaceID) bool {
	if id.IssuedAt.IsZero() {
		return true
	}
	return p.now().Sub(id.IssuedAt) >= FaceIDTTL-expirySafety
}

func (p *Provider) redetect(ctx context.Context, stored domain.FaceID, image provider.ImageFunc) (domain.FaceID, error) {
	data, err := image(ctx)
	if err != nil {
		return domain.FaceID{}, fmt.Errorf("load reference image: %w", err)
	}
	id, err := p.Extract(ctx, data)
	if err != nil {
		return domain.FaceID{}, fmt.Errorf("redetect reference: %w", err)
	}

	p.mu.Lock()
	if len(p.refreshed) >= refreshedCacheSize {
		p.refreshed = make(map[string]domain.FaceID)
	}
	p.refreshed[stored.Value] = id
	p.mu.Unlock()

	return id, nil
}

// Refreshed returns the live id detected in place of a stale stored
// reference, until that id expires too.
func (p *Provider) Refreshed(reference domain.FaceID) (domain.FaceID, bool) {
	p.mu.Lock()
	fresh, ok := p.refreshed[reference.Value]
	p.mu.Unlock()
	if !ok || p.expired(fresh) {
		return domain.FaceID{}, false
	}
	return fresh, true
}
