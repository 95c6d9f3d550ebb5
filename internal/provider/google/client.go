package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultEndpoint = "https://vision.googleapis.com"

// Config holds the configuration for the Cloud Vision client
type Config struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxResults int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Endpoint:   defaultEndpoint,
		Timeout:    15 * time.Second,
		MaxResults: 10,
	}
}

var ErrInvalidResponse = errors.New("invalid response from cloud vision")

const maxResponseSize = 4 << 20

// Status is the google.rpc.Status error payload
type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// APIError wraps a non-2xx or per-image error from Cloud Vision
type APIError struct {
	HTTPStatus int
	Status
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloud vision status %d %s: %s", e.HTTPStatus, e.Status.Status, e.Message)
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
}

type imageResponse struct {
	FaceAnnotations []FaceAnnotation `json:"faceAnnotations"`
	Error           *Status          `json:"error,omitempty"`
}

// FaceAnnotation is the subset of the face detection result used here
type FaceAnnotation struct {
	BoundingPoly        BoundingPoly `json:"boundingPoly"`
	Landmarks           []Landmark   `json:"landmarks"`
	RollAngle           float64      `json:"rollAngle"`
	DetectionConfidence float64      `json:"detectionConfidence"`
}

type BoundingPoly struct {
	Vertices []Vertex `json:"vertices"`
}

type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Area returns the area of the polygon's bounding rectangle.
func (b BoundingPoly) Area() float64 {
	if len(b.Vertices) == 0 {
		return 0
	}
	minX, minY := b.Vertices[0].X, b.Vertices[0].Y
	maxX, maxY := minX, minY
	for _, v := range b.Vertices[1:] {
		minX, maxX = min(minX, v.X), max(maxX, v.X)
		minY, maxY = min(minY, v.Y), max(maxY, v.Y)
	}
	return (maxX - minX) * (maxY - minY)
}

type Landmark struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Client is the REST client for images:annotate
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new Cloud Vision client
func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

// DetectFaces runs FACE_DETECTION on a single image
func (c *Client) DetectFaces(ctx context.Context, image []byte) ([]FaceAnnotation, error) {
	body, err := json.Marshal(annotateRequest{Requests: []imageRequest{{
		Image:    imageContent{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []feature{{Type: "FACE_DETECTION", MaxResults: c.config.MaxResults}},
	}}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.Endpoint, "/") + "/v1/images:annotate?key=" + url.QueryEscape(c.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error would echo the key embedded in the query string
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env struct {
			Error Status `json:"error"`
		}
		_ = json.Unmarshal(respBody, &env)
		return nil, &APIError{HTTPStatus: resp.StatusCode, Status: env.Error}
	}

	var out annotateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(out.Responses) == 0 {
		return nil, ErrInvalidResponse
	}
	if e := out.Responses[0].Error; e != nil {
		return nil, &APIError{HTTPStatus: http.StatusOK, Status: *e}
	}
	return out.Responses[0].FaceAnnotations, nil
}
