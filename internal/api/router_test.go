package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facematch/internal/admin"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/ws"
)

type stubService struct {
	cfg         *domain.ProviderConfig
	regenerated int
}

func (s *stubService) ActiveProvider(context.Context) (*domain.ProviderConfig, error) {
	if s.cfg == nil {
		return nil, domain.ErrNoActiveProvider
	}
	return s.cfg, nil
}

func (s *stubService) ExtractFaceFeatures(context.Context, string) (domain.FaceID, error) {
	return domain.FaceID{Provider: domain.ProviderMock, Value: "v"}, nil
}

func (s *stubService) SearchByFace(context.Context, string, *float64) ([]domain.FaceMatch, error) {
	return nil, nil
}

func (s *stubService) StoreFaceEmbedding(context.Context, uuid.UUID, string) (bool, error) {
	return true, nil
}

func (s *stubService) RegenerateAllFaceEmbeddings(context.Context) (*domain.RegenerationReport, error) {
	s.regenerated++
	return &domain.RegenerationReport{Errors: []string{}}, nil
}

func (s *stubService) RegenerateFaceEmbeddings(context.Context, []uuid.UUID) (*domain.RegenerationReport, error) {
	return &domain.RegenerationReport{Errors: []string{}}, nil
}

func newTestRouter(deps *Dependencies) *Router {
	router := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), deps)
	router.Setup()
	return router
}

func TestRouter_HealthWithoutDependencies(t *testing.T) {
	router := newTestRouter(nil)

	resp, err := router.App().Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result map[string]interface{}
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "ok", result["status"])

	resp, err = router.App().Test(httptest.NewRequest("POST", "/v1/faces/search", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRouter_NotFoundReturns404(t *testing.T) {
	router := newTestRouter(&Dependencies{Service: &stubService{}})

	resp, err := router.App().Test(httptest.NewRequest("GET", "/nonexistent", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(nil)

	_, err := router.App().Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)

	resp, err := router.App().Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "facematch_http_request_duration_seconds")
}

func TestRouter_ProviderUnavailable(t *testing.T) {
	router := newTestRouter(&Dependencies{Service: &stubService{}, APIKey: "client-key"})

	req := httptest.NewRequest("GET", "/v1/provider", nil)
	req.Header.Set("X-API-Key", "client-key")
	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "NO_ACTIVE_PROVIDER")
}

func TestRouter_AdminRequiresAPIKey(t *testing.T) {
	svc := &stubService{cfg: &domain.ProviderConfig{Type: domain.ProviderMock}}
	router := newTestRouter(&Dependencies{Service: svc, AdminAPIKey: "s3cret"})

	req := httptest.NewRequest("POST", "/v1/admin/embeddings/regenerate", nil)
	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, 0, svc.regenerated)

	req = httptest.NewRequest("POST", "/v1/admin/embeddings/regenerate", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, svc.regenerated)
}

func TestRouter_AdminAcceptsOperatorToken(t *testing.T) {
	svc := &stubService{cfg: &domain.ProviderConfig{Type: domain.ProviderMock}}
	tokens := admin.NewTokenService("signing-secret", "facematch", time.Hour)
	router := newTestRouter(&Dependencies{Service: svc, AdminTokens: tokens})

	token, err := tokens.Issue("ops@example.com", admin.ScopeAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/admin/embeddings/regenerate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, svc.regenerated)
}

func TestRouter_ProgressRequiresUpgrade(t *testing.T) {
	svc := &stubService{cfg: &domain.ProviderConfig{Type: domain.ProviderMock}}
	router := newTestRouter(&Dependencies{Service: svc, AdminAPIKey: "s3cret", Progress: ws.NewHub()})

	req := httptest.NewRequest("GET", "/v1/admin/regeneration/ws", nil)
	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req = httptest.NewRequest("GET", "/v1/admin/regeneration/ws", nil)
	req.Header.Set("X-API-Key", "s3cret")
	resp, err = router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestRouter_FeaturesJSON(t *testing.T) {
	svc := &stubService{cfg: &domain.ProviderConfig{Type: domain.ProviderMock}}
	router := newTestRouter(&Dependencies{Service: svc, AdminAPIKey: "s3cret"})

	req := httptest.NewRequest("POST", "/v1/faces/features", strings.NewReader(`{"image":"s3://b/k.jpg"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "s3cret")
	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRouter_FaceRoutesRequireCredentials(t *testing.T) {
	refID := uuid.NewString()
	routes := []struct {
		method string
		path   string
		body   string
	}{
		{"POST", "/v1/faces/features", `{"image":"data:image/jpeg;base64,AAAA"}`},
		{"POST", "/v1/faces/search", `{"image":"data:image/jpeg;base64,AAAA"}`},
		{"PUT", "/v1/references/" + refID + "/embedding", `{"photo":"http://169.254.169.254/latest/meta-data/"}`},
		{"GET", "/v1/provider", ""},
	}

	deployments := []struct {
		name string
		deps Dependencies
	}{
		{"admin key only", Dependencies{AdminAPIKey: "s3cret"}},
		{"client and admin keys", Dependencies{APIKey: "client-key", AdminAPIKey: "s3cret"}},
		{"nothing configured", Dependencies{}},
	}

	for _, d := range deployments {
		for _, route := range routes {
			t.Run(d.name+" "+route.method+" "+route.path, func(t *testing.T) {
				deps := d.deps
				deps.Service = &stubService{cfg: &domain.ProviderConfig{Type: domain.ProviderMock}}
				router := newTestRouter(&deps)

				var body io.Reader
				if route.body != "" {
					body = strings.NewReader(route.body)
				}
				req := httptest.NewRequest(route.method, route.path, body)
				req.Header.Set("Content-Type", "application/json")

				resp, err := router.App().Test(req, -1)
				require.NoError(t, err)
				assert.Equal(t, 401, resp.StatusCode)
			})
		}
	}
}

func TestRouter_ClientKeyCannotFetchRemoteImages(t *testing.T) {
	svc := &stubService{cfg: &domain.ProviderConfig{Type: domain.ProviderMock}}
	router := newTestRouter(&Dependencies{Service: svc, APIKey: "client-key", AdminAPIKey: "s3cret"})
	refID := uuid.NewString()

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		key            string
		expectedStatus int
	}{
		{"private url with client key", "POST", "/v1/faces/features", `{"image":"http://10.0.0.5/internal"}`, "client-key", 403},
		{"metadata photo with client key", "PUT", "/v1/references/" + refID + "/embedding", `{"photo":"http://169.254.169.254/latest/meta-data/"}`, "client-key", 403},
		{"bucket with client key", "POST", "/v1/faces/search", `{"image":"s3://secrets/q.jpg"}`, "client-key", 403},
		{"inline image with client key", "POST", "/v1/faces/features", `{"image":"data:image/jpeg;base64,AAAA"}`, "client-key", 200},
		{"stored photo with client key", "PUT", "/v1/references/" + refID + "/embedding", "", "client-key", 200},
		{"bucket with admin key", "POST", "/v1/faces/features", `{"image":"s3://photos/q.jpg"}`, "s3cret", 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			req.Header.Set("X-API-Key", tt.key)

			resp, err := router.App().Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestRouter_ClientTokenOnFaceRoutes(t *testing.T) {
	svc := &stubService{cfg: &domain.ProviderConfig{Type: domain.ProviderMock}}
	tokens := admin.NewTokenService("signing-secret", "facematch", time.Hour)
	router := newTestRouter(&Dependencies{Service: svc, AdminTokens: tokens})

	token, err := tokens.Issue("kiosk-1", admin.ScopeClient)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/v1/provider", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	req = httptest.NewRequest("POST", "/v1/admin/embeddings/regenerate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = router.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode, "client tokens do not open the admin routes")
	assert.Equal(t, 0, svc.regenerated)
}
