package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConfigs is a ConfigSource returning a fixed configuration
type fakeConfigs struct {
	cfg         *domain.ProviderConfig
	invalidated atomic.Int32
}

func (f *fakeConfigs) Get(context.Context) (*domain.ProviderConfig, error) {
	return f.cfg, nil
}

func (f *fakeConfigs) Invalidate() {
	f.invalidated.Add(1)
}

func activeConfig(t domain.ProviderType, threshold float64, maxResults int) *fakeConfigs {
	return &fakeConfigs{cfg: &domain.ProviderConfig{
		ID:                  uuid.New(),
		Name:                "test",
		Type:                t,
		SimilarityThreshold: threshold,
		MaxResults:          maxResults,
		IsActive:            true,
		Enabled:             true,
		UpdatedAt:           time.Now(),
	}}
}

type fakeResolver struct {
	provider provider.FaceProvider
	err      error
	calls    atomic.Int32
}

func (f *fakeResolver) Provider(context.Context, *domain.ProviderConfig) (provider.FaceProvider, error) {
	f.calls.Add(1)
	return f.provider, f.err
}

// scriptedProvider issues identifiers from a table keyed by image content and
// scores comparisons from a table keyed by reference identifier.
type scriptedProvider struct {
	kind domain.ProviderType

	mu           sync.Mutex
	queryCalls   int
	queryValues  []string
	queryErr     error
	references   map[string]string
	referenceErr map[string]error
	scores       map[string]float64
	compareErr   map[string]error
	expired      map[string]bool
	compares     int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func newScriptedProvider(kind domain.ProviderType) *scriptedProvider {
	return &scriptedProvider{
		kind:         kind,
		queryValues:  []string{"query-1"},
		references:   map[string]string{},
		referenceErr: map[string]error{},
		scores:       map[string]float64{},
		compareErr:   map[string]error{},
		expired:      map[string]bool{},
	}
}

func (p *scriptedProvider) Type() domain.ProviderType { return p.kind }

func (p *scriptedProvider) Extract(ctx context.Context, image []byte) (domain.FaceID, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		m := p.maxInFlight.Load()
		if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := string(image)
	if err, ok := p.referenceErr[key]; ok {
		return domain.FaceID{}, err
	}
	if value, ok := p.references[key]; ok {
		return domain.FaceID{Provider: p.kind, Value: value, IssuedAt: time.Now()}, nil
	}

	if p.queryErr != nil {
		return domain.FaceID{}, p.queryErr
	}
	idx := p.queryCalls
	if idx >= len(p.queryValues) {
		idx = len(p.queryValues) - 1
	}
	p.queryCalls++
	return domain.FaceID{Provider: p.kind, Value: p.queryValues[idx], IssuedAt: time.Now()}, nil
}

func (p *scriptedProvider) Compare(_ context.Context, query, reference domain.FaceID, _ provider.ImageFunc) (float64, error) {
	if err := provider.CheckOwnership(p.kind, query, reference); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.compares++

	if p.expired[query.Value] {
		return 0, domain.ErrIdentifierExpired
	}
	if err, ok := p.compareErr[reference.Value]; ok {
		return 0, err
	}
	return p.scores[reference.Value], nil
}

func (p *scriptedProvider) queryExtractions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queryCalls
}

// releasingProvider deletes identifiers on Release, like a provider that
// indexes faces into a collection.
type releasingProvider struct {
	*scriptedProvider

	releaseMu sync.Mutex
	released  []string
}

func (p *releasingProvider) Release(_ context.Context, id domain.FaceID) error {
	p.releaseMu.Lock()
	defer p.releaseMu.Unlock()
	p.released = append(p.released, id.Value)
	return nil
}

func (p *releasingProvider) releasedValues() []string {
	p.releaseMu.Lock()
	defer p.releaseMu.Unlock()
	return append([]string(nil), p.released...)
}

// refreshingProvider reports replacement identifiers for stale references.
type refreshingProvider struct {
	*scriptedProvider
	fresh map[string]domain.FaceID
}

func (p *refreshingProvider) Refreshed(reference domain.FaceID) (domain.FaceID, bool) {
	id, ok := p.fresh[reference.Value]
	return id, ok
}

// MockEmbeddingRepository mocks EmbeddingRepositoryInterface
type MockEmbeddingRepository struct {
	mock.Mock
}

func (m *MockEmbeddingRepository) Get(ctx context.Context, referenceID uuid.UUID) (*domain.FaceEmbeddingRecord, error) {
	args := m.Called(ctx, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FaceEmbeddingRecord), args.Error(1)
}

func (m *MockEmbeddingRepository) Upsert(ctx context.Context, record *domain.FaceEmbeddingRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockEmbeddingRepository) ListAllWithPhotos(ctx context.Context) ([]domain.FaceEmbeddingRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FaceEmbeddingRecord), args.Error(1)
}

func (m *MockEmbeddingRepository) ListFeatures(ctx context.Context, providerType domain.ProviderType) ([]domain.FaceEmbeddingRecord, error) {
	args := m.Called(ctx, providerType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FaceEmbeddingRecord), args.Error(1)
}

// MockReferenceRepository mocks ReferenceRepositoryInterface
type MockReferenceRepository struct {
	mock.Mock
}

func (m *MockReferenceRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ReferenceStub, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReferenceStub), args.Error(1)
}

func (m *MockReferenceRepository) ListWithPhotos(ctx context.Context) ([]domain.ReferenceStub, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ReferenceStub), args.Error(1)
}

func (m *MockReferenceRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ReferenceStub, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ReferenceStub), args.Error(1)
}

// mapLoader resolves references from an in-memory table; the image bytes are
// the reference string itself unless overridden.
type mapLoader struct {
	mu    sync.Mutex
	fail  map[string]error
	calls int
}

func newMapLoader() *mapLoader {
	return &mapLoader{fail: map[string]error{}}
}

func (l *mapLoader) Load(_ context.Context, ref string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if err, ok := l.fail[ref]; ok {
		return nil, err
	}
	if ref == "" {
		return nil, errors.New("empty reference")
	}
	return []byte(ref), nil
}

func (l *mapLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// storedRecord builds a reference whose stored identifier came from kind.
func storedRecord(kind domain.ProviderType, value string) domain.FaceEmbeddingRecord {
	rec := domain.FaceEmbeddingRecord{
		ReferenceID: uuid.New(),
		SubjectName: value,
		PhotoURL:    "https://cdn.example.com/" + value + ".jpg",
	}
	rec.SetFaceID(domain.FaceID{Provider: kind, Value: value})
	return rec
}
