package rekognition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
	// maxSearchFaces is the largest MaxFaces accepted by SearchFaces
	maxSearchFaces = 4096

	matchCacheTTL  = time.Minute
	matchCacheSize = 256
)

// Provider implements the provider.FaceProvider interface using AWS Rekognition.
// Faces are indexed into a single collection; the identifier is the
// Rekognition FaceId, and comparison searches the collection by FaceId.
type Provider struct {
	client  *Client
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	matches map[string]searchEntry
}

// searchEntry memoizes one SearchFaces response so that a 1:N search issues
// a single AWS call per query face.
type searchEntry struct {
	scores  map[string]float64
	fetched time.Time
}

// Ensure Provider implements provider.FaceProvider interface at compile time
var (
	_ provider.FaceProvider = (*Provider)(nil)
	_ provider.Releaser     = (*Provider)(nil)
)

// NewProvider creates a new Rekognition provider for the given provider record.
// The collection is created lazily on the first Extract.
func NewProvider(ctx context.Context, cfg Config, configID string) (*Provider, error) {
	if cfg.Region == "" {
		return nil, domain.ErrProviderConfigInvalid.WithError(fmt.Errorf("aws region is required"))
	}

	client, err := NewClient(ctx, cfg, configID)
	if err != nil {
		return nil, domain.ErrProviderConfigInvalid.WithError(fmt.Errorf("create rekognition client: %w", err))
	}

	return newProvider(client, cfg.Timeout), nil
}

func newProvider(client *Client, timeout time.Duration) *Provider {
	return &Provider{
		client:  client,
		timeout: timeout,
		now:     time.Now,
		matches: make(map[string]searchEntry),
	}
}

func (p *Provider) Type() domain.ProviderType {
	return domain.ProviderAWS
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) < minImageSize {
		return domain.ErrImageDecode.WithError(
			fmt.Errorf("image too small (%d bytes, minimum %d)", len(image), minImageSize))
	}
	if len(image) > maxImageSize {
		return domain.ErrImageTooLarge.WithError(
			fmt.Errorf("image too large (%d bytes, maximum %d)", len(image), maxImageSize))
	}
	return nil
}

// Extract indexes the most prominent face of image into the collection and
// returns its FaceId.
func (p *Provider) Extract(ctx context.Context, image []byte) (domain.FaceID, error) {
	if err := validateImage(image); err != nil {
		return domain.FaceID{}, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if err := p.client.EnsureCollection(ctx); err != nil {
		return domain.FaceID{}, fmt.Errorf("ensure collection: %w", err)
	}

	output, err := p.client.api.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId:  aws.String(p.client.CollectionID()),
		Image:         &types.Image{Bytes: image},
		MaxFaces:      aws.Int32(1), // largest face only
		QualityFilter: types.QualityFilterAuto,
		DetectionAttributes: []types.Attribute{
			types.AttributeDefault,
		},
	})
	if err != nil {
		return domain.FaceID{}, fmt.Errorf("index face: %w", mapError(opIndex, err))
	}

	if len(output.FaceRecords) == 0 || output.FaceRecords[0].Face == nil || output.FaceRecords[0].Face.FaceId == nil {
		return domain.FaceID{}, ParseIndexFacesError(output.UnindexedFaces)
	}

	return domain.FaceID{
		Provider: domain.ProviderAWS,
		Value:    *output.FaceRecords[0].Face.FaceId,
		IssuedAt: p.now(),
	}, nil
}

// Compare searches the collection with the query FaceId and reports the
// similarity of the reference FaceId, or 0 when it is not among the matches.
func (p *Provider) Compare(ctx context.Context, query, reference domain.FaceID, _ provider.ImageFunc) (float64, error) {
	if err := provider.CheckOwnership(domain.ProviderAWS, query, reference); err != nil {
		return 0, err
	}
	if query.Value == reference.Value {
		return 1, nil
	}

	scores, err := p.searchFaces(ctx, query.Value)
	if err != nil {
		return 0, err
	}

	return scores[reference.Value], nil
}

func (p *Provider) searchFaces(ctx context.Context, faceID string) (map[string]float64, error) {
	now := p.now()

	p.mu.Lock()
	if entry, ok := p.matches[faceID]; ok && now.Sub(entry.fetched) < matchCacheTTL {
		p.mu.Unlock()
		return entry.scores, nil
	}
	p.mu.Unlock()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	output, err := p.client.api.SearchFaces(ctx, &rekognition.SearchFacesInput{
		CollectionId:       aws.String(p.client.CollectionID()),
		FaceId:             aws.String(faceID),
		FaceMatchThreshold: aws.Float32(0),
		MaxFaces:           aws.Int32(maxSearchFaces),
	})
	if err != nil {
		return nil, fmt.Errorf("search faces: %w", mapError(opSearch, err))
	}

	scores := make(map[string]float64, len(output.FaceMatches))
	for _, m := range output.FaceMatches {
		if m.Face == nil || m.Face.FaceId == nil || m.Similarity == nil {
			continue
		}
		scores[*m.Face.FaceId] = provider.Clamp(float64(*m.Similarity) / 100.0)
	}

	p.mu.Lock()
	if len(p.matches) >= matchCacheSize {
		p.matches = make(map[string]searchEntry)
	}
	p.matches[faceID] = searchEntry{scores: scores, fetched: now}
	p.mu.Unlock()

	return scores, nil
}

// Release deletes an indexed face from the collection. Unknown FaceIds are
// not an error.
func (p *Provider) Release(ctx context.Context, id domain.FaceID) error {
	if err := provider.CheckOwnership(domain.ProviderAWS, id); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.matches, id.Value)
	p.mu.Unlock()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.client.api.DeleteFaces(ctx, &rekognition.DeleteFacesInput{
		CollectionId: aws.String(p.client.CollectionID()),
		FaceIds:      []string{id.Value},
	})
	if err != nil {
		return fmt.Errorf("delete face: %w", mapError(opCollection, err))
	}
	return nil
}
