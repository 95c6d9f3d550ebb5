package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facematch/internal/audit"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

type recordingAudit struct {
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

type serviceFixture struct {
	configs *fakeConfigs
	p       *scriptedProvider
	refs    *MockReferenceRepository
	repo    *MockEmbeddingRepository
	loader  *mapLoader
	audit   *recordingAudit
	svc     *FaceMatchService
}

func newServiceFixture(configs *fakeConfigs) *serviceFixture {
	f := &serviceFixture{
		configs: configs,
		p:       newScriptedProvider(domain.ProviderMock),
		refs:    new(MockReferenceRepository),
		repo:    new(MockEmbeddingRepository),
		loader:  newMapLoader(),
		audit:   &recordingAudit{},
	}
	resolver := &fakeResolver{provider: f.p}
	engine := NewSearchEngine(configs, resolver, f.repo, f.loader, discardLogger())
	regen := NewRegenerator(configs, resolver, f.refs, f.repo, f.loader, discardLogger()).WithBatching(5, 0)
	f.svc = NewFaceMatchService(configs, resolver, f.refs, f.repo, f.loader, engine, regen, f.audit, discardLogger())
	return f
}

func TestFaceMatchService_ExtractFaceFeatures(t *testing.T) {
	f := newServiceFixture(activeConfig(domain.ProviderMock, 0.8, 10))

	id, err := f.svc.ExtractFaceFeatures(context.Background(), "data:image/jpeg;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderMock, id.Provider)
	assert.Equal(t, "query-1", id.Value)

	f.p.queryErr = domain.ErrNoFaceDetected
	_, err = f.svc.ExtractFaceFeatures(context.Background(), "img")
	assert.ErrorIs(t, err, domain.ErrNoFaceDetected)
}

func TestFaceMatchService_NoActiveProvider(t *testing.T) {
	f := newServiceFixture(&fakeConfigs{})
	ctx := context.Background()

	_, err := f.svc.ExtractFaceFeatures(ctx, "img")
	assert.ErrorIs(t, err, domain.ErrNoActiveProvider)

	_, err = f.svc.SearchByFace(ctx, "img", nil)
	assert.ErrorIs(t, err, domain.ErrNoActiveProvider)

	stored, err := f.svc.StoreFaceEmbedding(ctx, uuid.New(), "img")
	assert.ErrorIs(t, err, domain.ErrNoActiveProvider)
	assert.False(t, stored)

	_, err = f.svc.RegenerateAllFaceEmbeddings(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveProvider)

	_, err = f.svc.ActiveProvider(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveProvider)

	assert.Equal(t, 0, f.loader.callCount(), "no image is fetched without a provider")
	assert.Equal(t, 0, f.p.queryExtractions())
}

func TestFaceMatchService_SearchByFace(t *testing.T) {
	f := newServiceFixture(activeConfig(domain.ProviderMock, 0.8, 5))

	rec := storedRecord(domain.ProviderMock, "a")
	f.p.scores["a"] = 0.91
	f.repo.On("ListFeatures", mock.Anything, domain.ProviderMock).Return([]domain.FaceEmbeddingRecord{rec}, nil)

	matches, err := f.svc.SearchByFace(context.Background(), "query", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, rec.ReferenceID, matches[0].ReferenceID)

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.EventFaceSearched, f.audit.events[0].EventType)
	assert.Equal(t, "1", f.audit.events[0].Metadata["matches"])
}

func TestFaceMatchService_SearchByFace_InvalidThresholdBeforeLoad(t *testing.T) {
	f := newServiceFixture(activeConfig(domain.ProviderMock, 0.8, 5))

	bad := 2.0
	_, err := f.svc.SearchByFace(context.Background(), "query", &bad)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)
	assert.Equal(t, 0, f.loader.callCount())
}

func TestFaceMatchService_StoreFaceEmbedding(t *testing.T) {
	refID := uuid.New()
	stub := &domain.ReferenceStub{ID: refID, SubjectName: "Ana", PhotoURL: "https://cdn.example.com/ana.jpg"}

	tests := []struct {
		name       string
		photoRef   string
		setup      func(f *serviceFixture)
		wantStored bool
		wantErr    error
	}{
		{
			name: "uses reference photo by default",
			setup: func(f *serviceFixture) {
				f.refs.On("Get", mock.Anything, refID).Return(stub, nil)
				f.p.references[stub.PhotoURL] = "ana-face"
				f.repo.On("Upsert", mock.Anything, mock.MatchedBy(func(r *domain.FaceEmbeddingRecord) bool {
					return r.ReferenceID == refID && *r.FaceServiceID == "ana-face" && r.PhotoURL == stub.PhotoURL
				})).Return(nil)
			},
			wantStored: true,
		},
		{
			name:     "explicit photo overrides",
			photoRef: "s3://photos/new.jpg",
			setup: func(f *serviceFixture) {
				f.refs.On("Get", mock.Anything, refID).Return(stub, nil)
				f.p.references["s3://photos/new.jpg"] = "new-face"
				f.repo.On("Upsert", mock.Anything, mock.MatchedBy(func(r *domain.FaceEmbeddingRecord) bool {
					return *r.FaceServiceID == "new-face" && r.PhotoURL == "s3://photos/new.jpg"
				})).Return(nil)
			},
			wantStored: true,
		},
		{
			name: "extraction failure returns false without error",
			setup: func(f *serviceFixture) {
				f.refs.On("Get", mock.Anything, refID).Return(stub, nil)
				f.p.referenceErr[stub.PhotoURL] = domain.ErrNoFaceDetected
			},
			wantStored: false,
		},
		{
			name: "photo load failure returns false without error",
			setup: func(f *serviceFixture) {
				f.refs.On("Get", mock.Anything, refID).Return(stub, nil)
				f.loader.fail[stub.PhotoURL] = domain.ErrImageFetch
			},
			wantStored: false,
		},
		{
			name: "unknown reference",
			setup: func(f *serviceFixture) {
				f.refs.On("Get", mock.Anything, refID).Return(nil, domain.ErrReferenceNotFound)
			},
			wantErr: domain.ErrReferenceNotFound,
		},
		{
			name: "reference without photo",
			setup: func(f *serviceFixture) {
				f.refs.On("Get", mock.Anything, refID).Return(&domain.ReferenceStub{ID: refID}, nil)
			},
			wantErr: domain.ErrValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(activeConfig(domain.ProviderMock, 0.8, 10))
			tt.setup(f)

			stored, err := f.svc.StoreFaceEmbedding(context.Background(), refID, tt.photoRef)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStored, stored)
			f.repo.AssertExpectations(t)
		})
	}
}

func TestFaceMatchService_ProviderChanged(t *testing.T) {
	f := newServiceFixture(activeConfig(domain.ProviderMock, 0.8, 10))
	f.refs.On("ListWithPhotos", mock.Anything).Return([]domain.ReferenceStub{}, nil)

	report, err := f.svc.ProviderChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, int32(1), f.configs.invalidated.Load())

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.EventEmbeddingsRegenerated, f.audit.events[0].EventType)
	assert.True(t, f.audit.events[0].Success)
}

func TestFaceMatchService_StoreFaceEmbedding_ReleasesReplacedFace(t *testing.T) {
	refID := uuid.New()
	stub := &domain.ReferenceStub{ID: refID, SubjectName: "Ana", PhotoURL: "https://cdn.example.com/ana.jpg"}

	previous := &domain.FaceEmbeddingRecord{ReferenceID: refID}
	previous.SetFaceID(domain.FaceID{Provider: domain.ProviderAWS, Value: "ana-old"})

	tests := []struct {
		name         string
		existing     *domain.FaceEmbeddingRecord
		existingErr  error
		upsertErr    error
		wantReleased []string
	}{
		{name: "replaced id is deleted", existing: previous, wantReleased: []string{"ana-old"}},
		{name: "first store releases nothing", existingErr: domain.ErrEmbeddingNotFound, wantReleased: nil},
		{name: "failed write releases the new id", existing: previous, upsertErr: domain.ErrInternal, wantReleased: []string{"ana-new"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configs := activeConfig(domain.ProviderAWS, 0.8, 10)
			p := &releasingProvider{scriptedProvider: newScriptedProvider(domain.ProviderAWS)}
			p.references[stub.PhotoURL] = "ana-new"

			refs := new(MockReferenceRepository)
			refs.On("Get", mock.Anything, refID).Return(stub, nil)
			repo := new(MockEmbeddingRepository)
			if tt.existing != nil {
				repo.On("Get", mock.Anything, refID).Return(tt.existing, nil)
			} else {
				repo.On("Get", mock.Anything, refID).Return(nil, tt.existingErr)
			}
			repo.On("Upsert", mock.Anything, mock.Anything).Return(tt.upsertErr)

			resolver := &fakeResolver{provider: p}
			loader := newMapLoader()
			svc := NewFaceMatchService(configs, resolver, refs, repo, loader,
				NewSearchEngine(configs, resolver, repo, loader, discardLogger()),
				NewRegenerator(configs, resolver, refs, repo, loader, discardLogger()),
				nil, discardLogger())

			stored, err := svc.StoreFaceEmbedding(context.Background(), refID, "")
			if tt.upsertErr != nil {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.True(t, stored)
			}
			assert.Equal(t, tt.wantReleased, p.releasedValues())
		})
	}
}
