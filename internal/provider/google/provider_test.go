package google

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/provider"
)

// syntheticFace lays the descriptor landmarks out on a deterministic grid,
// then scales, rotates and translates them.
func syntheticFace(scale, angle, tx, ty, jitter float64) FaceAnnotation {
	base := map[string][2]float64{
		"LEFT_EYE": {-0.5, 0}, "RIGHT_EYE": {0.5, 0},
	}
	for i, name := range descriptorLandmarks {
		if _, ok := base[name]; ok {
			continue
		}
		base[name] = [2]float64{float64(i%5)*0.3 - 0.6, float64(i/5)*0.35 - 0.3}
	}

	cos, sin := math.Cos(angle), math.Sin(angle)
	face := FaceAnnotation{
		BoundingPoly: BoundingPoly{Vertices: []Vertex{{X: tx - scale, Y: ty - scale}, {X: tx + scale, Y: ty + scale}}},
	}
	for i, name := range descriptorLandmarks {
		p := base[name]
		x := p[0] * scale
		y := p[1] * scale
		if name != "LEFT_EYE" && name != "RIGHT_EYE" {
			x += jitter * scale * float64(i%3)
		}
		face.Landmarks = append(face.Landmarks, Landmark{
			Type:     name,
			Position: Position{X: x*cos - y*sin + tx, Y: x*sin + y*cos + ty},
		})
	}
	return face
}

func TestDescriptor_InvariantToPose(t *testing.T) {
	a, err := Descriptor(syntheticFace(60, 0, 200, 150, 0))
	require.NoError(t, err)
	b, err := Descriptor(syntheticFace(120, 0.3, 500, 40, 0))
	require.NoError(t, err)

	assert.InDelta(t, 1.0, Similarity(a, b), 1e-4)
}

func TestDescriptor_MissingLandmarks(t *testing.T) {
	face := syntheticFace(60, 0, 0, 0, 0)
	face.Landmarks = face.Landmarks[:5]

	_, err := Descriptor(face)
	assert.ErrorIs(t, err, errIncompleteLandmarks)
}

func TestSimilarity_DecreasesWithDistortion(t *testing.T) {
	a, _ := Descriptor(syntheticFace(60, 0, 0, 0, 0))
	b, _ := Descriptor(syntheticFace(60, 0, 0, 0, 0.05))
	c, _ := Descriptor(syntheticFace(60, 0, 0, 0, 0.4))

	sb, sc := Similarity(a, b), Similarity(a, c)
	assert.Less(t, sb, 1.0)
	assert.Greater(t, sb, sc)
	assert.Equal(t, 0.0, Similarity(a, a[:4]))
}

func TestSimilarity_MeanDisplacementScale(t *testing.T) {
	tests := []struct {
		name  string
		shift float32
		want  float64
	}{
		{"identical", 0, 1},
		{"half the cutoff", maxMeanDistance / 2, 0.5},
		{"at the cutoff", maxMeanDistance, 0},
		{"beyond the cutoff", 2 * maxMeanDistance, 0},
	}

	a := []float32{0, 0, 1, 0, 0.5, 1}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// every landmark moves by shift along x, so the mean displacement is shift
			b := make([]float32, len(a))
			for i := range a {
				b[i] = a[i]
				if i%2 == 0 {
					b[i] += tt.shift
				}
			}
			assert.InDelta(t, tt.want, Similarity(a, b), 1e-6)
		})
	}
}

func visionServer(t *testing.T, status int, body any) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images:annotate", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req annotateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Requests, 1)
		assert.Equal(t, "FACE_DETECTION", req.Requests[0].Features[0].Type)

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Endpoint = srv.URL
	cfg.APIKey = "test-key"
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	return p
}

func TestProvider_Extract(t *testing.T) {
	small := syntheticFace(20, 0, 50, 50, 0.1)
	large := syntheticFace(80, 0, 300, 300, 0)
	largeDesc, err := Descriptor(large)
	require.NoError(t, err)

	tests := []struct {
		name    string
		status  int
		body    any
		wantErr error
	}{
		{
			name:   "largest face",
			status: http.StatusOK,
			body:   annotateResponse{Responses: []imageResponse{{FaceAnnotations: []FaceAnnotation{small, large}}}},
		},
		{
			name:    "no faces",
			status:  http.StatusOK,
			body:    annotateResponse{Responses: []imageResponse{{}}},
			wantErr: domain.ErrNoFaceDetected,
		},
		{
			name:   "per image error",
			status: http.StatusOK,
			body: annotateResponse{Responses: []imageResponse{{Error: &Status{
				Code: 3, Status: "INVALID_ARGUMENT", Message: "Bad image data.",
			}}}},
			wantErr: domain.ErrImageDecode,
		},
		{
			name:   "api disabled",
			status: http.StatusForbidden,
			body: map[string]Status{"error": {
				Code: 403, Status: "PERMISSION_DENIED", Message: "Cloud Vision API has not been used in project 123 before or it is disabled.",
			}},
			wantErr: domain.ErrFeatureRequiresApproval,
		},
		{
			name:   "invalid key",
			status: http.StatusBadRequest,
			body: map[string]Status{"error": {
				Code: 400, Status: "INVALID_ARGUMENT", Message: "API key not valid. Please pass a valid API key.",
			}},
			wantErr: domain.ErrProviderConfigInvalid,
		},
		{
			name:    "backend failure",
			status:  http.StatusServiceUnavailable,
			body:    map[string]Status{"error": {Code: 503, Status: "UNAVAILABLE"}},
			wantErr: domain.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := visionServer(t, tt.status, tt.body)

			id, err := p.Extract(context.Background(), []byte("jpeg"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.ProviderGoogle, id.Provider)
			assert.Equal(t, provider.EncodeVector(largeDesc), id.Value)
		})
	}
}

func TestProvider_Compare(t *testing.T) {
	p, err := NewProvider(Config{APIKey: "k"})
	require.NoError(t, err)

	a, _ := Descriptor(syntheticFace(60, 0, 0, 0, 0))
	b, _ := Descriptor(syntheticFace(90, 0.2, 10, 10, 0))

	q := domain.FaceID{Provider: domain.ProviderGoogle, Value: provider.EncodeVector(a)}
	r := domain.FaceID{Provider: domain.ProviderGoogle, Value: provider.EncodeVector(b)}

	sim, err := p.Compare(context.Background(), q, r, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-4)

	_, err = p.Compare(context.Background(), q, domain.FaceID{Provider: domain.ProviderCustom, Value: r.Value}, nil)
	assert.ErrorIs(t, err, domain.ErrProviderMismatch)
}

func TestNewProvider_RequiresKey(t *testing.T) {
	_, err := NewProvider(DefaultConfig())
	assert.ErrorIs(t, err, domain.ErrProviderConfigInvalid)
}
