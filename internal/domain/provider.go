package domain

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ProviderType identifica o backend de reconhecimento facial
type ProviderType string

const (
	ProviderAWS    ProviderType = "aws"
	ProviderAzure  ProviderType = "azure"
	ProviderGoogle ProviderType = "google"
	ProviderCustom ProviderType = "custom"
	ProviderMock   ProviderType = "mock"
)

const (
	DefaultSimilarityThreshold = 0.8
	DefaultMaxResults          = 10
)

// ProviderConfig is the single active face provider record.
type ProviderConfig struct {
	ID                  uuid.UUID    `json:"id"`
	Name                string       `json:"name"`
	Type                ProviderType `json:"provider_type"`
	SimilarityThreshold float64      `json:"similarity_threshold"`
	MaxResults          int          `json:"max_results"`
	IsActive            bool         `json:"is_active"`
	Enabled             bool         `json:"enabled"`
	Credentials         Credentials  `json:"-"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Credentials holds the variant specific settings. Only the fields of the
// configured variant are populated.
type Credentials struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Region          string `json:"region,omitempty"`
	CollectionID    string `json:"collection_id,omitempty"`

	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// Threshold returns the stored threshold, or the default when the stored
// value is outside (0,1].
func (c *ProviderConfig) Threshold() float64 {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return DefaultSimilarityThreshold
	}
	return c.SimilarityThreshold
}

func (c *ProviderConfig) ResultLimit() int {
	if c.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return c.MaxResults
}

// CacheKey changes whenever the record is edited, so clients built from an
// older version of the credentials are not reused.
func (c *ProviderConfig) CacheKey() string {
	return c.ID.String() + "@" + c.UpdatedAt.UTC().Format(time.RFC3339Nano)
}

// LogValue keeps credentials out of structured logs.
func (c *ProviderConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.ID.String()),
		slog.String("name", c.Name),
		slog.String("type", string(c.Type)),
		slog.Float64("threshold", c.Threshold()),
		slog.Int("max_results", c.ResultLimit()),
	)
}

// FaceID is a provider issued face identifier. It is only meaningful to the
// provider that produced it.
type FaceID struct {
	Provider ProviderType `json:"provider"`
	Value    string       `json:"face_id"`
	IssuedAt time.Time    `json:"issued_at"`

	// Embedding is set by providers whose identifier is a local vector.
	Embedding []float32 `json:"-"`
}

func (f FaceID) IsZero() bool {
	return f.Value == ""
}

// BelongsTo reports whether the identifier was produced by provider p.
func (f FaceID) BelongsTo(p ProviderType) bool {
	return f.Value != "" && f.Provider == p
}
