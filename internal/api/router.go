package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/facematch/internal/admin"
	"github.com/saturnino-fabrica-de-software/facematch/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/facematch/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facematch/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facematch/internal/database"
	"github.com/saturnino-fabrica-de-software/facematch/internal/ws"
)

type Dependencies struct {
	Service          handler.FaceMatchService
	DB               database.Pinger
	// APIKey authenticates clients of the face routes
	APIKey           string
	AdminAPIKey      string
	// AdminTokens enables operator tokens on the admin routes when set
	AdminTokens      *admin.TokenService
	// Progress streams regeneration progress at /v1/admin/regeneration/ws
	Progress         *ws.Hub
	// SearchLimiter caps searches per client when SearchRateLimit is positive
	SearchLimiter    middleware.SearchLimiter
	SearchRateLimit  int
	SearchRateWindow time.Duration
	BodyLimit        int
}

type Router struct {
	app    *fiber.App
	logger *slog.Logger
	deps   *Dependencies
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	cfg := fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Face Match API",
	}
	if deps != nil && deps.BodyLimit > 0 {
		cfg.BodyLimit = deps.BodyLimit
	}

	return &Router{
		app:    fiber.New(cfg),
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(middleware.Metrics())
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	var (
		db      database.Pinger
		service handler.FaceMatchService
	)
	if r.deps != nil {
		db = r.deps.DB
		service = r.deps.Service
	}

	// Health check endpoints (no auth required)
	var status handler.ProviderStatus
	if service != nil {
		status = service
	}
	healthHandler := handler.NewHealthHandler(db, status)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if service == nil {
		return
	}

	faceHandler := handler.NewFaceHandler(service, r.logger)

	clientAuth := middleware.Client(r.deps.APIKey, r.deps.AdminAPIKey, r.deps.AdminTokens)

	v1 := r.app.Group("/v1")
	v1.Post("/faces/features", clientAuth, faceHandler.Features)
	v1.Post("/faces/search",
		clientAuth,
		middleware.SearchRateLimit(r.deps.SearchLimiter, r.deps.SearchRateLimit, r.deps.SearchRateWindow, r.logger),
		faceHandler.Search,
	)
	v1.Put("/references/:id/embedding", clientAuth, faceHandler.StoreEmbedding)
	v1.Get("/provider", clientAuth, faceHandler.Provider)

	adminGroup := v1.Group("/admin", middleware.Admin(r.deps.AdminAPIKey, r.deps.AdminTokens))
	adminGroup.Post("/embeddings/regenerate", faceHandler.Regenerate)
	if r.deps.Progress != nil {
		adminGroup.Get("/regeneration/ws", ws.UpgradeMiddleware(), ws.Handler(r.deps.Progress, r.logger))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	return r.app.Shutdown()
}
