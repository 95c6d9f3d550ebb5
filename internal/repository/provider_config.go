package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

type ProviderConfigRepository struct {
	pool PgxPool
}

func NewProviderConfigRepository(pool PgxPool) *ProviderConfigRepository {
	return &ProviderConfigRepository{pool: pool}
}

// GetActive returns the most recently updated active and enabled
// configuration, or nil when there is none.
func (r *ProviderConfigRepository) GetActive(ctx context.Context) (*domain.ProviderConfig, error) {
	query := `
		SELECT id, name, provider_type, credentials, similarity_threshold, max_results, is_active, enabled, updated_at
		FROM face_provider_configs
		WHERE is_active = true AND enabled = true
		ORDER BY updated_at DESC, id
		LIMIT 1
	`

	var cfg domain.ProviderConfig
	var providerType string

	err := r.pool.QueryRow(ctx, query).Scan(
		&cfg.ID,
		&cfg.Name,
		&providerType,
		&cfg.Credentials,
		&cfg.SimilarityThreshold,
		&cfg.MaxResults,
		&cfg.IsActive,
		&cfg.Enabled,
		&cfg.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active provider config: %w", err)
	}

	cfg.Type = domain.ProviderType(providerType)
	return &cfg, nil
}
