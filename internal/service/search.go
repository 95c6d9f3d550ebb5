package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

const DefaultSearchConcurrency = 4

type SearchEngine struct {
	configs     ConfigSource
	providers   ProviderResolver
	embeddings  EmbeddingRepositoryInterface
	images      ImageLoader
	logger      *slog.Logger
	concurrency int
	persist     bool
}

func NewSearchEngine(
	configs ConfigSource,
	providers ProviderResolver,
	embeddings EmbeddingRepositoryInterface,
	images ImageLoader,
	logger *slog.Logger,
) *SearchEngine {
	return &SearchEngine{
		configs:     configs,
		providers:   providers,
		embeddings:  embeddings,
		images:      images,
		logger:      logger,
		concurrency: DefaultSearchConcurrency,
		persist:     true,
	}
}

// WithConcurrency bounds the number of in-flight comparisons
func (e *SearchEngine) WithConcurrency(n int) *SearchEngine {
	if n > 0 {
		e.concurrency = n
	}
	return e
}

// WithPersistDerived controls whether identifiers derived during a search
// are written back.
func (e *SearchEngine) WithPersistDerived(persist bool) *SearchEngine {
	e.persist = persist
	return e
}

// ValidateThreshold accepts nil or a value in [0,1].
func ValidateThreshold(threshold *float64) error {
	if threshold == nil {
		return nil
	}
	if math.IsNaN(*threshold) || *threshold < 0 || *threshold > 1 {
		return domain.ErrInvalidThreshold
	}
	return nil
}

// Search ranks stored references against the face in queryImage. Matches
// are at or above the threshold, sorted by similarity descending with ties
// broken by reference id, and capped at the configured result limit.
func (e *SearchEngine) Search(ctx context.Context, queryImage []byte, thresholdOverride *float64) ([]domain.FaceMatch, error) {
	cfg, err := e.configs.Get(ctx)
	if err != nil || cfg == nil {
		return nil, domain.ErrNoActiveProvider
	}

	if err := ValidateThreshold(thresholdOverride); err != nil {
		return nil, err
	}
	threshold := cfg.Threshold()
	if thresholdOverride != nil {
		threshold = *thresholdOverride
	}

	p, err := e.providers.Provider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queryID, err := p.Extract(ctx, queryImage)
	if err != nil {
		return nil, fmt.Errorf("extract query face: %w", err)
	}
	query := &sharedQuery{id: queryID, image: queryImage, provider: p, issued: []domain.FaceID{queryID}}
	defer e.releaseQuery(ctx, p, query)

	corpus, err := e.corpus(ctx, p.Type())
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(corpus))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range corpus {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			scores[i] = e.score(gctx, p, query, &corpus[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches := rank(corpus, scores, threshold, cfg.ResultLimit())
	metrics.SearchMatches.Observe(float64(len(matches)))
	return matches, nil
}

// corpus prefers the references already holding identifiers from the active
// provider and falls back to every reference with a photo.
func (e *SearchEngine) corpus(ctx context.Context, t domain.ProviderType) ([]domain.FaceEmbeddingRecord, error) {
	records, err := e.embeddings.ListFeatures(ctx, t)
	if err == nil && len(records) > 0 {
		return records, nil
	}
	if err != nil {
		e.logger.Warn("feature listing unavailable, using all references", "provider", t, "error", err)
	}

	records, err = e.embeddings.ListAllWithPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("load search corpus: %w", err)
	}
	return records, nil
}

// score compares the query with one reference. Failures count as zero.
func (e *SearchEngine) score(ctx context.Context, p provider.FaceProvider, query *sharedQuery, rec *domain.FaceEmbeddingRecord) float64 {
	var photo []byte

	ref, ok := rec.StoredFaceID()
	if !ok || ref.Provider != p.Type() {
		if rec.PhotoURL == "" {
			e.logFailure(rec, p, "derive", errors.New("reference has no photo"))
			return 0
		}
		img, err := e.images.Load(ctx, rec.PhotoURL)
		if err != nil {
			e.logFailure(rec, p, "load_photo", err)
			return 0
		}
		photo = img

		ref, err = p.Extract(ctx, img)
		if err != nil {
			e.logFailure(rec, p, "extract", err)
			return 0
		}
		if !e.persistDerived(ctx, p, rec, ref) {
			defer releaseFaceID(ctx, p, ref, e.logger)
		}
	}

	referenceImage := lazyImage(e.images, rec.PhotoURL, photo)

	similarity, err := p.Compare(ctx, query.current(), ref, referenceImage)
	if errors.Is(err, domain.ErrIdentifierExpired) {
		fresh, rerr := query.refresh(ctx)
		if rerr != nil {
			err = rerr
		} else {
			similarity, err = p.Compare(ctx, fresh, ref, referenceImage)
		}
	}
	if err != nil {
		e.logFailure(rec, p, "compare", err)
		return 0
	}

	if refresher, ok := provider.As[provider.Refresher](p); ok {
		if fresh, ok := refresher.Refreshed(ref); ok {
			e.persistDerived(ctx, p, rec, fresh)
		}
	}
	return similarity
}

// persistDerived writes id back to rec's reference and reports whether it
// was stored.
func (e *SearchEngine) persistDerived(ctx context.Context, p provider.FaceProvider, rec *domain.FaceEmbeddingRecord, id domain.FaceID) bool {
	if !e.persist {
		return false
	}
	updated := *rec
	updated.SetFaceID(id)
	if err := storeFaceID(ctx, e.embeddings, p, &updated, e.logger); err != nil {
		e.logger.Warn("failed to persist derived face id",
			"reference_id", rec.ReferenceID,
			"provider", id.Provider,
			"error", err,
		)
		return false
	}
	return true
}

// releaseQuery deletes every identifier issued for the query image.
func (e *SearchEngine) releaseQuery(ctx context.Context, p provider.FaceProvider, query *sharedQuery) {
	query.mu.RLock()
	issued := append([]domain.FaceID(nil), query.issued...)
	query.mu.RUnlock()

	for _, id := range issued {
		releaseFaceID(ctx, p, id, e.logger)
	}
}

func (e *SearchEngine) logFailure(rec *domain.FaceEmbeddingRecord, p provider.FaceProvider, operation string, err error) {
	metrics.SearchReferenceFailures.Inc()
	e.logger.Warn("reference scored as zero",
		"reference_id", rec.ReferenceID,
		"provider", p.Type(),
		"operation", operation,
		"error", err,
	)
}

func rank(corpus []domain.FaceEmbeddingRecord, scores []float64, threshold float64, limit int) []domain.FaceMatch {
	matches := make([]domain.FaceMatch, 0)
	for i, rec := range corpus {
		if scores[i] < threshold {
			continue
		}
		matches = append(matches, domain.FaceMatch{
			ReferenceID:    rec.ReferenceID,
			SubjectName:    rec.SubjectName,
			SubjectContact: rec.SubjectContact,
			PhotoURL:       rec.PhotoURL,
			Similarity:     scores[i],
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ReferenceID.String() < matches[j].ReferenceID.String()
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// sharedQuery holds the query identifier and re-extracts it at most once
// for all workers of a search.
type sharedQuery struct {
	provider provider.FaceProvider
	image    []byte

	mu     sync.RWMutex
	id     domain.FaceID
	issued []domain.FaceID

	once       sync.Once
	refreshErr error
}

func (q *sharedQuery) current() domain.FaceID {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.id
}

func (q *sharedQuery) refresh(ctx context.Context) (domain.FaceID, error) {
	q.once.Do(func() {
		id, err := q.provider.Extract(ctx, q.image)
		if err != nil {
			q.refreshErr = fmt.Errorf("refresh query face: %w", err)
			return
		}
		q.mu.Lock()
		q.id = id
		q.issued = append(q.issued, id)
		q.mu.Unlock()
	})
	if q.refreshErr != nil {
		return domain.FaceID{}, q.refreshErr
	}
	return q.current(), nil
}
