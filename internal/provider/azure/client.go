package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the configuration for the Azure Face API client
type Config struct {
	Endpoint         string
	SubscriptionKey  string
	Timeout          time.Duration
	DetectionModel   string
	RecognitionModel string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:          15 * time.Second,
		DetectionModel:   "detection_03",
		RecognitionModel: "recognition_04",
	}
}

const maxResponseSize = 1 << 20

// DetectedFace is one entry of the detect response
type DetectedFace struct {
	FaceID        string        `json:"faceId"`
	FaceRectangle FaceRectangle `json:"faceRectangle"`
}

type FaceRectangle struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r FaceRectangle) Area() int {
	return r.Width * r.Height
}

type verifyRequest struct {
	FaceID1 string `json:"faceId1"`
	FaceID2 string `json:"faceId2"`
}

// VerifyResult is the verify response
type VerifyResult struct {
	IsIdentical bool    `json:"isIdentical"`
	Confidence  float64 `json:"confidence"`
}

// Client is the HTTP client for the Azure Face API
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new Face API client
func NewClient(config Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

// Detect calls POST /face/v1.0/detect with returnFaceId enabled
func (c *Client) Detect(ctx context.Context, image []byte) ([]DetectedFace, error) {
	q := url.Values{}
	q.Set("returnFaceId", "true")
	q.Set("returnFaceLandmarks", "false")
	q.Set("detectionModel", c.config.DetectionModel)
	q.Set("recognitionModel", c.config.RecognitionModel)

	var faces []DetectedFace
	err := c.do(ctx, "/face/v1.0/detect?"+q.Encode(), "application/octet-stream", bytes.NewReader(image), &faces)
	if err != nil {
		return nil, err
	}
	return faces, nil
}

// Verify calls POST /face/v1.0/verify for two face ids
func (c *Client) Verify(ctx context.Context, faceID1, faceID2 string) (*VerifyResult, error) {
	body, err := json.Marshal(verifyRequest{FaceID1: faceID1, FaceID2: faceID2})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var result VerifyResult
	if err := c.do(ctx, "/face/v1.0/verify", "application/json", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, result interface{}) error {
	endpoint := strings.TrimRight(c.config.Endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.config.SubscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		_ = json.Unmarshal(respBody, &env)
		apiErr := env.Error
		apiErr.StatusCode = resp.StatusCode
		if apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		return &apiErr
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
