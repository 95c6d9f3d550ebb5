package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/metrics"
)

// DefaultConfigTTL is how long an active provider configuration is reused
const DefaultConfigTTL = 5 * time.Minute

// ConfigStore reads the active provider configuration. A nil result with a
// nil error means no provider is active.
type ConfigStore interface {
	GetActive(ctx context.Context) (*domain.ProviderConfig, error)
}

// ProviderConfigCache holds the active provider configuration for a TTL.
// Failed and empty lookups are never cached.
type ProviderConfigCache struct {
	store  ConfigStore
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	value     *domain.ProviderConfig
	fetchedAt time.Time
}

// NewProviderConfigCache creates a cache around store
func NewProviderConfigCache(store ConfigStore, logger *slog.Logger) *ProviderConfigCache {
	return &ProviderConfigCache{
		store:  store,
		logger: logger,
		ttl:    DefaultConfigTTL,
		now:    time.Now,
	}
}

// WithTTL overrides the default TTL
func (c *ProviderConfigCache) WithTTL(ttl time.Duration) *ProviderConfigCache {
	if ttl > 0 {
		c.ttl = ttl
	}
	return c
}

// WithClock injects the time source
func (c *ProviderConfigCache) WithClock(now func() time.Time) *ProviderConfigCache {
	c.now = now
	return c
}

// Get returns the active configuration or nil when none is available.
func (c *ProviderConfigCache) Get(ctx context.Context) (*domain.ProviderConfig, error) {
	c.mu.Lock()
	if c.value != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		v := c.value
		c.mu.Unlock()
		metrics.ConfigCacheLookups.WithLabelValues(metrics.ResultHit).Inc()
		return v, nil
	}
	c.mu.Unlock()

	metrics.ConfigCacheLookups.WithLabelValues(metrics.ResultMiss).Inc()

	cfg, err := c.store.GetActive(ctx)
	if err != nil {
		c.logger.Error("failed to load active provider config", "error", err)
		return nil, nil
	}
	if cfg == nil {
		return nil, nil
	}

	c.mu.Lock()
	c.value = cfg
	c.fetchedAt = c.now()
	c.mu.Unlock()

	return cfg, nil
}

// Invalidate drops the cached configuration
func (c *ProviderConfigCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
	c.fetchedAt = time.Time{}
}
