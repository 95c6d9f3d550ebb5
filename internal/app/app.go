// Package app assembles the face matching service from configuration. The
// API server and the operator CLI share it.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/saturnino-fabrica-de-software/facematch/internal/admin"
	"github.com/saturnino-fabrica-de-software/facematch/internal/audit"
	"github.com/saturnino-fabrica-de-software/facematch/internal/cache"
	"github.com/saturnino-fabrica-de-software/facematch/internal/config"
	"github.com/saturnino-fabrica-de-software/facematch/internal/database"
	"github.com/saturnino-fabrica-de-software/facematch/internal/face"
	"github.com/saturnino-fabrica-de-software/facematch/internal/imageloader"
	"github.com/saturnino-fabrica-de-software/facematch/internal/ratelimit"
	"github.com/saturnino-fabrica-de-software/facematch/internal/repository"
	"github.com/saturnino-fabrica-de-software/facematch/internal/service"
	"github.com/saturnino-fabrica-de-software/facematch/internal/storage"
	"github.com/saturnino-fabrica-de-software/facematch/internal/ws"
)

// App holds the long lived dependencies of a process
type App struct {
	Pool      *pgxpool.Pool
	Configs   *cache.ProviderConfigCache
	Providers *face.Registry
	Service   *service.FaceMatchService
	// Progress receives regeneration batches; the API server runs it
	Progress  *ws.Hub
	Tokens    *admin.TokenService
	Limiter   *ratelimit.RateLimiter

	sweepers []*cache.Sweeper
	redis    *redis.Client
	logger   *slog.Logger
}

// Build connects to the database and optional backends and wires the
// service. Close releases everything Build opened.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, err
	}

	a := &App{
		Pool:     pool,
		Progress: ws.NewHub(),
		Tokens:   admin.NewTokenService(cfg.AdminTokenSecret, cfg.AdminTokenIssuer, cfg.AdminTokenTTL),
		logger:   logger,
	}

	loader, err := a.imageLoader(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.SearchRateLimit > 0 {
		a.Limiter = ratelimit.NewRateLimiter(pool, cfg.SearchRateWindow)
		a.startSweeper(a.Limiter)
	}

	configRepo := repository.NewProviderConfigRepository(pool)
	references := repository.NewReferenceRepository(pool)
	embeddings := repository.NewEmbeddingRepository(pool)

	a.Configs = cache.NewProviderConfigCache(configRepo, logger).WithTTL(cfg.ConfigCacheTTL)

	auditLogger := audit.NewSlogLogger(logger)
	a.Providers = face.NewDefaultRegistry(face.Options{
		Timeout:             cfg.ProviderTimeout,
		AWSCollectionPrefix: cfg.AWSCollectionPrefix,
	}, face.Instrument(auditLogger))

	search := service.NewSearchEngine(a.Configs, a.Providers, embeddings, loader, logger).
		WithConcurrency(cfg.SearchConcurrency).
		WithPersistDerived(cfg.PersistDerivedEmbeddings)

	regenerator := service.NewRegenerator(a.Configs, a.Providers, references, embeddings, loader, logger).
		WithBatching(cfg.RegenerateBatchSize, cfg.RegenerateBatchDelay).
		WithProgress(a.Progress)

	a.Service = service.NewFaceMatchService(
		a.Configs,
		a.Providers,
		references,
		embeddings,
		loader,
		search,
		regenerator,
		auditLogger,
		logger,
	)
	return a, nil
}

func (a *App) imageLoader(ctx context.Context, cfg *config.Config) (*imageloader.Loader, error) {
	opts := []imageloader.Option{imageloader.WithLogger(a.logger)}

	switch cfg.PhotoCache {
	case "postgres":
		pgCache := cache.NewPGCache(a.Pool)
		a.startSweeper(pgCache)
		opts = append(opts, imageloader.WithPhotoCache(pgCache))
	case "redis":
		redisCache, client, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		a.redis = client
		opts = append(opts, imageloader.WithPhotoCache(redisCache))
	}

	if cfg.ObjectStorageEnabled() {
		store, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			// s3:// references fail with ErrImageFetch until storage is reachable
			a.logger.Warn("object storage unreachable", "endpoint", cfg.MinioEndpoint, "error", err)
		}
		opts = append(opts, imageloader.WithObjectStore(store))
	}

	a.logger.Info("image loader configured",
		"photo_cache", cfg.PhotoCache,
		"object_storage", cfg.ObjectStorageEnabled(),
		"max_bytes", cfg.ImageMaxBytes,
	)

	return imageloader.New(imageloader.Config{
		MaxBytes:             cfg.ImageMaxBytes,
		FetchTimeout:         cfg.ImageFetchTimeout,
		MaxDimension:         cfg.ImageMaxDimension,
		CacheTTL:             cfg.PhotoCacheTTL,
		AllowedHosts:         cfg.ImageAllowedHosts,
		AllowedBuckets:       cfg.ImageAllowedBuckets,
		AllowPrivateNetworks: cfg.ImageAllowPrivateNetworks,
	}, opts...), nil
}

func (a *App) startSweeper(cleaner cache.Cleaner) {
	sweeper := cache.NewSweeper(cleaner, a.logger, 0)
	sweeper.Start()
	a.sweepers = append(a.sweepers, sweeper)
}

// Close stops background work and closes connections
func (a *App) Close() {
	for _, sweeper := range a.sweepers {
		sweeper.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

