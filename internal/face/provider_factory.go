package face

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider/azure"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider/custom"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider/google"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider/rekognition"
)

// Options are the process level settings shared by every provider variant
type Options struct {
	Timeout             time.Duration
	AWSCollectionPrefix string
}

// Constructor builds a provider from the active configuration record
type Constructor func(ctx context.Context, cfg *domain.ProviderConfig, opts Options) (provider.FaceProvider, error)

// Decorator wraps every provider the registry builds
type Decorator func(provider.FaceProvider) provider.FaceProvider

// maxBuilt bounds the number of memoized clients.
const maxBuilt = 4

// Registry maps provider tags to constructors and memoizes the client built
// for each configuration version. Adding a variant is a Register call.
type Registry struct {
	opts     Options
	decorate Decorator

	mu           sync.Mutex
	constructors map[domain.ProviderType]Constructor
	built        map[string]provider.FaceProvider
}

// NewRegistry creates an empty registry
func NewRegistry(opts Options, decorate Decorator) *Registry {
	return &Registry{
		opts:         opts,
		decorate:     decorate,
		constructors: make(map[domain.ProviderType]Constructor),
		built:        make(map[string]provider.FaceProvider),
	}
}

// NewDefaultRegistry creates a registry with the aws, azure, google, custom
// and mock variants registered.
func NewDefaultRegistry(opts Options, decorate Decorator) *Registry {
	r := NewRegistry(opts, decorate)
	r.Register(domain.ProviderAWS, newRekognitionProvider)
	r.Register(domain.ProviderAzure, newAzureProvider)
	r.Register(domain.ProviderGoogle, newGoogleProvider)
	r.Register(domain.ProviderCustom, newCustomProvider)
	r.Register(domain.ProviderMock, newMockProvider)
	return r
}

// Register adds or replaces the constructor for a tag
func (r *Registry) Register(t domain.ProviderType, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[t] = c
}

// Types lists registered tags in sorted order
func (r *Registry) Types() []domain.ProviderType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ProviderType, 0, len(r.constructors))
	for t := range r.constructors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Provider returns the client for cfg, building it on first use of this
// configuration version.
func (r *Registry) Provider(ctx context.Context, cfg *domain.ProviderConfig) (provider.FaceProvider, error) {
	if cfg == nil {
		return nil, domain.ErrNoActiveProvider
	}
	key := cfg.CacheKey()

	r.mu.Lock()
	if p, ok := r.built[key]; ok {
		r.mu.Unlock()
		return p, nil
	}
	ctor, ok := r.constructors[cfg.Type]
	r.mu.Unlock()

	if !ok {
		return nil, domain.ErrProviderConfigInvalid.WithError(
			fmt.Errorf("unknown provider type %q (supported: %v)", cfg.Type, r.Types()))
	}

	p, err := ctor(ctx, cfg, r.opts)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Type, err)
	}
	if r.decorate != nil {
		p = r.decorate(p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.built[key]; ok {
		return existing, nil
	}
	if len(r.built) >= maxBuilt {
		r.built = make(map[string]provider.FaceProvider)
	}
	r.built[key] = p
	return p, nil
}

// newRekognitionProvider creates an AWS Rekognition provider instance
func newRekognitionProvider(ctx context.Context, cfg *domain.ProviderConfig, opts Options) (provider.FaceProvider, error) {
	rc := rekognition.DefaultConfig()
	rc.Region = cfg.Credentials.Region
	rc.AccessKeyID = cfg.Credentials.AccessKeyID
	rc.SecretAccessKey = cfg.Credentials.SecretAccessKey
	rc.CollectionID = cfg.Credentials.CollectionID
	if opts.AWSCollectionPrefix != "" {
		rc.CollectionPrefix = opts.AWSCollectionPrefix + "-"
	}
	if opts.Timeout > 0 {
		rc.Timeout = opts.Timeout
	}
	return rekognition.NewProvider(ctx, rc, cfg.ID.String())
}

func newAzureProvider(_ context.Context, cfg *domain.ProviderConfig, opts Options) (provider.FaceProvider, error) {
	ac := azure.DefaultConfig()
	ac.Endpoint = cfg.Credentials.Endpoint
	ac.SubscriptionKey = cfg.Credentials.APIKey
	if opts.Timeout > 0 {
		ac.Timeout = opts.Timeout
	}
	return azure.NewProvider(ac)
}

func newGoogleProvider(_ context.Context, cfg *domain.ProviderConfig, opts Options) (provider.FaceProvider, error) {
	gc := google.DefaultConfig()
	gc.APIKey = cfg.Credentials.APIKey
	if cfg.Credentials.Endpoint != "" {
		gc.Endpoint = cfg.Credentials.Endpoint
	}
	if opts.Timeout > 0 {
		gc.Timeout = opts.Timeout
	}
	return google.NewProvider(gc)
}

func newCustomProvider(_ context.Context, cfg *domain.ProviderConfig, opts Options) (provider.FaceProvider, error) {
	cc := custom.DefaultConfig()
	cc.Endpoint = cfg.Credentials.Endpoint
	cc.APIKey = cfg.Credentials.APIKey
	if opts.Timeout > 0 {
		cc.Timeout = opts.Timeout
	}
	return custom.NewProvider(cc)
}

func newMockProvider(context.Context, *domain.ProviderConfig, Options) (provider.FaceProvider, error) {
	return mock.New(), nil
}
