package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facematch/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/imageloader"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/bmp":  true,
}

// FaceMatchService interface for the service
type FaceMatchService interface {
	ActiveProvider(ctx context.Context) (*domain.ProviderConfig, error)
	ExtractFaceFeatures(ctx context.Context, imageRef string) (domain.FaceID, error)
	SearchByFace(ctx context.Context, imageRef string, threshold *float64) ([]domain.FaceMatch, error)
	StoreFaceEmbedding(ctx context.Context, referenceID uuid.UUID, photoRef string) (bool, error)
	RegenerateAllFaceEmbeddings(ctx context.Context) (*domain.RegenerationReport, error)
	RegenerateFaceEmbeddings(ctx context.Context, ids []uuid.UUID) (*domain.RegenerationReport, error)
}

// FaceHandler handles face matching requests
type FaceHandler struct {
	service FaceMatchService
	logger  *slog.Logger
}

// NewFaceHandler creates a new FaceHandler instance
func NewFaceHandler(service FaceMatchService, logger *slog.Logger) *FaceHandler {
	return &FaceHandler{
		service: service,
		logger:  logger,
	}
}

// FeaturesResponse response for features endpoint
type FeaturesResponse struct {
	FaceID   string `json:"face_id"`
	Provider string `json:"provider"`
}

// StoreEmbeddingResponse response for embedding endpoint
type StoreEmbeddingResponse struct {
	ReferenceID string `json:"reference_id"`
	Stored      bool   `json:"stored"`
}

// ProviderResponse describes the active provider without its credentials
type ProviderResponse struct {
	Name       string  `json:"name"`
	Type       string  `json:"provider_type"`
	Threshold  float64 `json:"similarity_threshold"`
	MaxResults int     `json:"max_results"`
	UpdatedAt  string  `json:"updated_at"`
}

type imageRequest struct {
	Image     string   `json:"image"`
	Threshold *float64 `json:"threshold"`
}

type embeddingRequest struct {
	Photo string `json:"photo"`
}

type regenerateRequest struct {
	ReferenceIDs []uuid.UUID `json:"reference_ids"`
}

// Features POST /v1/faces/features - extract the provider identifier of a face
func (h *FaceHandler) Features(c *fiber.Ctx) error {
	req, err := parseImageRequest(c)
	if err != nil {
		return fmt.Errorf("extract features: %w", err)
	}
	if err := checkImageSource(c, req.Image); err != nil {
		return err
	}

	id, err := h.service.ExtractFaceFeatures(c.Context(), req.Image)
	if err != nil {
		return err
	}

	return c.JSON(FeaturesResponse{
		FaceID:   id.Value,
		Provider: string(id.Provider),
	})
}

// Search POST /v1/faces/search - search references by face (1:N)
func (h *FaceHandler) Search(c *fiber.Ctx) error {
	start := time.Now()

	req, err := parseImageRequest(c)
	if err != nil {
		return fmt.Errorf("search faces: %w", err)
	}
	if err := checkImageSource(c, req.Image); err != nil {
		return err
	}

	cfg, err := h.service.ActiveProvider(c.Context())
	if err != nil {
		return err
	}

	matches, err := h.service.SearchByFace(c.Context(), req.Image, req.Threshold)
	if err != nil {
		return err
	}
	if matches == nil {
		matches = []domain.FaceMatch{}
	}

	threshold := cfg.Threshold()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	return c.JSON(domain.SearchResult{
		Matches:   matches,
		Total:     len(matches),
		Provider:  cfg.Type,
		Threshold: threshold,
		LatencyMs: time.Since(start).Milliseconds(),
	})
}

// StoreEmbedding PUT /v1/references/:id/embedding - derive and store a reference identifier
func (h *FaceHandler) StoreEmbedding(c *fiber.Ctx) error {
	referenceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("invalid reference id: %w", err))
	}

	var req embeddingRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return domain.ErrBadRequest.WithError(err)
		}
	}

	photo := strings.TrimSpace(req.Photo)
	if err := checkImageSource(c, photo); err != nil {
		return err
	}

	stored, err := h.service.StoreFaceEmbedding(c.Context(), referenceID, photo)
	if err != nil {
		return err
	}

	if !stored {
		h.logger.Warn("reference embedding not stored", "reference_id", referenceID)
	}
	return c.JSON(StoreEmbeddingResponse{
		ReferenceID: referenceID.String(),
		Stored:      stored,
	})
}

// Regenerate POST /v1/admin/embeddings/regenerate - recompute stored identifiers
func (h *FaceHandler) Regenerate(c *fiber.Ctx) error {
	var req regenerateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return domain.ErrBadRequest.WithError(err)
		}
	}

	var (
		report *domain.RegenerationReport
		err    error
	)
	if len(req.ReferenceIDs) > 0 {
		report, err = h.service.RegenerateFaceEmbeddings(c.Context(), req.ReferenceIDs)
	} else {
		report, err = h.service.RegenerateAllFaceEmbeddings(c.Context())
	}
	if err != nil {
		return err
	}

	h.logger.Info("face embeddings regenerated",
		"total", report.Total,
		"success", report.Success,
		"failed", report.Failed,
	)
	return c.JSON(report)
}

// Provider GET /v1/provider - describe the active provider
func (h *FaceHandler) Provider(c *fiber.Ctx) error {
	cfg, err := h.service.ActiveProvider(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(ProviderResponse{
		Name:       cfg.Name,
		Type:       string(cfg.Type),
		Threshold:  cfg.Threshold(),
		MaxResults: cfg.ResultLimit(),
		UpdatedAt:  cfg.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// checkImageSource limits URL and object storage references to callers
// holding admin credentials. Inline images are always accepted.
func checkImageSource(c *fiber.Ctx, ref string) error {
	if ref == "" || !imageloader.IsRemote(ref) || middleware.Trusted(c) {
		return nil
	}
	return domain.ErrImageSourceForbidden.WithError(
		errors.New("remote image references require admin credentials"))
}

// parseImageRequest accepts a multipart upload in the "image" field or a
// JSON body whose "image" is any reference the image loader understands.
func parseImageRequest(c *fiber.Ctx) (*imageRequest, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return parseMultipartImage(c)
	}

	var req imageRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, domain.ErrBadRequest.WithError(err)
	}
	req.Image = strings.TrimSpace(req.Image)
	if req.Image == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("image is required"))
	}
	return &req, nil
}

func parseMultipartImage(c *fiber.Ctx) (*imageRequest, error) {
	var req imageRequest

	if raw := strings.TrimSpace(c.FormValue("threshold")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, domain.ErrInvalidThreshold.WithError(err)
		}
		req.Threshold = &v
	}

	file, err := c.FormFile("image")
	if err != nil {
		if ref := strings.TrimSpace(c.FormValue("image")); ref != "" {
			req.Image = ref
			return &req, nil
		}
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	if file.Size > maxImageSize {
		return nil, domain.ErrImageTooLarge
	}
	if file.Size == 0 {
		return nil, domain.ErrImageDecode.WithError(errors.New("empty image"))
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrImageDecode.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrImageDecode.WithError(err)
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		contentType = http.DetectContentType(imageBytes)
		if !validImageTypes[contentType] {
			return nil, domain.ErrImageDecode.WithError(fmt.Errorf("unsupported content type %q", contentType))
		}
	}

	req.Image = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(imageBytes)
	return &req, nil
}
