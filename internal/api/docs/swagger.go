package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// FeaturesResponse represents the provider identifier extracted from an image
type FeaturesResponse struct {
	FaceID   string `json:"face_id" example:"3f2a9c1e-7b44-4f0e-9d2a-1c5b6e7f8a90"`
	Provider string `json:"provider" example:"azure"`
}

// MatchData represents a single search match
type MatchData struct {
	ReferenceID    string  `json:"reference_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	SubjectName    string  `json:"subject_name" example:"Maria Silva"`
	SubjectContact string  `json:"subject_contact,omitempty" example:"+55 11 99999-0000"`
	PhotoURL       string  `json:"photo_url" example:"s3://references/maria.jpg"`
	Similarity     float64 `json:"similarity" example:"0.93"`
}

// SearchResponse represents the ranked result of a face search
type SearchResponse struct {
	Matches   []MatchData `json:"matches"`
	Total     int         `json:"total" example:"1"`
	Provider  string      `json:"provider" example:"aws"`
	Threshold float64     `json:"threshold" example:"0.8"`
	LatencyMs int64       `json:"latency_ms" example:"420"`
}

// StoreEmbeddingResponse reports whether an identifier was stored
type StoreEmbeddingResponse struct {
	ReferenceID string `json:"reference_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Stored      bool   `json:"stored" example:"true"`
}

// RegenerationResponse summarizes a regeneration run
type RegenerationResponse struct {
	Total      int      `json:"total" example:"120"`
	Success    int      `json:"success" example:"117"`
	Failed     int      `json:"failed" example:"3"`
	Errors     []string `json:"errors" example:"[]"`
	DurationNs int64    `json:"duration_ns" example:"24000000000"`
}

// ProviderResponse describes the active provider without credentials
type ProviderResponse struct {
	Name       string  `json:"name" example:"primary"`
	Type       string  `json:"provider_type" example:"aws"`
	Threshold  float64 `json:"similarity_threshold" example:"0.8"`
	MaxResults int     `json:"max_results" example:"10"`
	UpdatedAt  string  `json:"updated_at" example:"2026-01-01T00:00:00Z"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

var (
	errUnavailable = response.New(ErrorResponse{Code: "NO_ACTIVE_PROVIDER", Message: "face matching unavailable"}, "503", "Service Unavailable")
	errInternal    = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errUpstream    = response.New(ErrorResponse{Code: "PROVIDER_UNAVAILABLE", Message: "Face provider is unavailable"}, "502", "Bad Gateway")

	errUnauthorized    = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing API key"}, "401", "Unauthorized")
	errSourceForbidden = response.New(ErrorResponse{Code: "IMAGE_SOURCE_FORBIDDEN", Message: "Image source is not allowed"}, "403", "Forbidden")

	apiKeyAuth = []map[string][]string{{"ApiKeyAuth": {}}}
)

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Face Match API",
		Version:     "v1.0.0",
		Description: "Face feature extraction, 1:N search and reference embedding management backed by a configurable face provider",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	imageConsumes := []mime.MIME{mime.MIME("multipart/form-data"), mime.JSON}

	endpoints := []*endpoint.EndPoint{
		// POST /v1/faces/features
		endpoint.New(
			endpoint.POST,
			"/faces/features",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Extract face features"),
			endpoint.WithDescription("Returns the active provider's identifier for the face in the image. Send a multipart 'image' file or JSON {\"image\": ref} where ref is a data URL, http(s) URL, s3://bucket/key or base64. URL and s3 references require admin credentials."),
			endpoint.WithConsume(imageConsumes),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FeaturesResponse{}, "200", "Features extracted"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "image is required"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "could not detect a face in your photo"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "IMAGE_TOO_LARGE", Message: "Image exceeds the maximum allowed size"}, "413", "Payload Too Large"),
				errUpstream,
				errUnavailable,
				errInternal,
				errUnauthorized,
				errSourceForbidden,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// POST /v1/faces/search
		endpoint.New(
			endpoint.POST,
			"/faces/search",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Search references by face"),
			endpoint.WithDescription("Compares the query face with every stored reference and returns matches at or above the threshold, best first, capped at the provider's max results."),
			endpoint.WithConsume(imageConsumes),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("threshold", parameter.Query, parameter.WithDescription("Minimum similarity (0-1). Sent as a form field or JSON field; defaults to the provider setting")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SearchResponse{}, "200", "Search completed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "INVALID_THRESHOLD", Message: "Threshold must be between 0 and 1"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "could not detect a face in your photo"}, "422", "Unprocessable Entity"),
				errUpstream,
				errUnavailable,
				errInternal,
				errUnauthorized,
				errSourceForbidden,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// PUT /v1/references/:id/embedding
		endpoint.New(
			endpoint.PUT,
			"/references/{id}/embedding",
			endpoint.WithTags("References"),
			endpoint.WithSummary("Store a reference embedding"),
			endpoint.WithDescription("Derives the active provider's identifier from the reference photo, or from JSON {\"photo\": ref} when given, and stores it. stored=false means no face could be extracted. A URL or s3 photo requires admin credentials."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Reference UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StoreEmbeddingResponse{}, "200", "Embedding processed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "REFERENCE_NOT_FOUND", Message: "Reference not found"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
				errUnavailable,
				errInternal,
				errUnauthorized,
				errSourceForbidden,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// GET /v1/provider
		endpoint.New(
			endpoint.GET,
			"/provider",
			endpoint.WithTags("Provider"),
			endpoint.WithSummary("Describe the active provider"),
			endpoint.WithDescription("Returns the active provider's name, type, similarity threshold and result cap. Credentials are never returned."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ProviderResponse{}, "200", "Active provider"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnavailable,
				errUnauthorized,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// POST /v1/admin/embeddings/regenerate
		endpoint.New(
			endpoint.POST,
			"/admin/embeddings/regenerate",
			endpoint.WithTags("Admin"),
			endpoint.WithSummary("Regenerate reference embeddings"),
			endpoint.WithDescription("Recomputes stored identifiers with the active provider in small batches. Optional JSON {\"reference_ids\": [...]} restricts the run. Item failures are listed in the report."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RegenerationResponse{}, "200", "Regeneration finished"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errUnavailable,
				errInternal,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
