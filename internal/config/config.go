package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Security. Face routes accept API_KEY, the admin key or an operator
	// token; with none configured they answer 401.
	APIKey           string        `envconfig:"API_KEY"`
	AdminAPIKey      string        `envconfig:"ADMIN_API_KEY"`
	AdminTokenSecret string        `envconfig:"ADMIN_TOKEN_SECRET"`
	AdminTokenIssuer string        `envconfig:"ADMIN_TOKEN_ISSUER" default:"facematch"`
	AdminTokenTTL    time.Duration `envconfig:"ADMIN_TOKEN_TTL" default:"1h"`

	// Provider selection
	ConfigCacheTTL      time.Duration `envconfig:"CONFIG_CACHE_TTL" default:"5m"`
	ProviderTimeout     time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`
	AWSCollectionPrefix string        `envconfig:"AWS_COLLECTION_PREFIX" default:"facematch"`

	// Images
	ImageMaxBytes     int64         `envconfig:"IMAGE_MAX_BYTES" default:"10485760"`
	ImageMaxDimension int           `envconfig:"IMAGE_MAX_DIMENSION" default:"0"`
	ImageFetchTimeout time.Duration `envconfig:"IMAGE_FETCH_TIMEOUT" default:"20s"`

	// Remote image sources; empty lists allow any host or bucket
	ImageAllowedHosts         []string `envconfig:"IMAGE_ALLOWED_HOSTS"`
	ImageAllowedBuckets       []string `envconfig:"IMAGE_ALLOWED_BUCKETS"`
	ImageAllowPrivateNetworks bool     `envconfig:"IMAGE_ALLOW_PRIVATE_NETWORKS" default:"false"`

	// Search and regeneration
	SearchConcurrency        int           `envconfig:"SEARCH_CONCURRENCY" default:"4"`
	PersistDerivedEmbeddings bool          `envconfig:"PERSIST_DERIVED_EMBEDDINGS" default:"true"`
	RegenerateBatchSize      int           `envconfig:"REGENERATE_BATCH_SIZE" default:"5"`
	RegenerateBatchDelay     time.Duration `envconfig:"REGENERATE_BATCH_DELAY" default:"1s"`

	// Searches per client per window; 0 disables the limit
	SearchRateLimit  int           `envconfig:"SEARCH_RATE_LIMIT" default:"0"`
	SearchRateWindow time.Duration `envconfig:"SEARCH_RATE_WINDOW" default:"1m"`

	// Photo byte cache: none, postgres or redis
	PhotoCache    string        `envconfig:"PHOTO_CACHE" default:"none"`
	PhotoCacheTTL time.Duration `envconfig:"PHOTO_CACHE_TTL" default:"1h"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`

	// Object storage for s3:// photo references
	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// Events
	NatsURL      string `envconfig:"NATS_URL"`
	NatsConsumer string `envconfig:"NATS_CONSUMER" default:"facematch"`
	EventWorkers int    `envconfig:"EVENT_WORKERS" default:"2"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RegenerateBatchSize <= 0 {
		return fmt.Errorf("REGENERATE_BATCH_SIZE must be positive, got %d", c.RegenerateBatchSize)
	}
	if c.SearchConcurrency <= 0 {
		return fmt.Errorf("SEARCH_CONCURRENCY must be positive, got %d", c.SearchConcurrency)
	}
	if c.ImageMaxBytes <= 0 {
		return fmt.Errorf("IMAGE_MAX_BYTES must be positive, got %d", c.ImageMaxBytes)
	}
	if c.SearchRateLimit > 0 && c.SearchRateWindow <= 0 {
		return fmt.Errorf("SEARCH_RATE_WINDOW must be positive, got %s", c.SearchRateWindow)
	}
	switch c.PhotoCache {
	case "none", "postgres", "redis":
	default:
		return fmt.Errorf("PHOTO_CACHE must be none, postgres or redis, got %q", c.PhotoCache)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) ObjectStorageEnabled() bool {
	return c.MinioEndpoint != ""
}

func (c *Config) EventsEnabled() bool {
	return c.NatsURL != ""
}
