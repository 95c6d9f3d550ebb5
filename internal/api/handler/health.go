package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facematch/internal/database"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

// Version is reported by the health endpoint; overridden at build time.
var Version = "0.1.0"

// ProviderStatus reports the active provider configuration
type ProviderStatus interface {
	ActiveProvider(ctx context.Context) (*domain.ProviderConfig, error)
}

type HealthHandler struct {
	db        database.Pinger
	providers ProviderStatus
}

// NewHealthHandler creates a handler; nil dependencies are skipped by Ready.
func NewHealthHandler(db database.Pinger, providers ProviderStatus) *HealthHandler {
	return &HealthHandler{db: db, providers: providers}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Database string `json:"database,omitempty"`
	Provider string `json:"provider,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// Ready fails when the database is unreachable. A missing provider
// configuration is reported but does not fail readiness.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ready"}

	if h.db != nil {
		if err := database.HealthCheck(c.Context(), h.db); err != nil {
			resp.Status = "unavailable"
			resp.Database = "down"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
		resp.Database = "up"
	}

	if h.providers != nil {
		cfg, err := h.providers.ActiveProvider(c.Context())
		switch {
		case errors.Is(err, domain.ErrNoActiveProvider):
			resp.Provider = "none"
		case err != nil:
			resp.Provider = "unknown"
		default:
			resp.Provider = string(cfg.Type)
		}
	}

	return c.JSON(resp)
}
