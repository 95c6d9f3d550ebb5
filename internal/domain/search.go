package domain

import (
	"time"

	"github.com/google/uuid"
)

// FaceMatch represents a reference whose photo matched the query face
type FaceMatch struct {
	ReferenceID    uuid.UUID `json:"reference_id"`
	SubjectName    string    `json:"subject_name"`
	SubjectContact string    `json:"subject_contact,omitempty"`
	PhotoURL       string    `json:"photo_url"`
	Similarity     float64   `json:"similarity"`
}

// SearchResult represents the complete search response
type SearchResult struct {
	Matches   []FaceMatch  `json:"matches"`
	Total     int          `json:"total"`
	Provider  ProviderType `json:"provider"`
	Threshold float64      `json:"threshold"`
	LatencyMs int64        `json:"latency_ms"`
}

// RegenerationReport summarizes a batch regeneration run
type RegenerationReport struct {
	Total    int           `json:"total"`
	Success  int           `json:"success"`
	Failed   int           `json:"failed"`
	Errors   []string      `json:"errors"`
	Duration time.Duration `json:"duration_ns"`
}

// RegenerationProgress is emitted after each regeneration batch completes
type RegenerationProgress struct {
	RunID     string       `json:"run_id"`
	Provider  ProviderType `json:"provider"`
	Processed int          `json:"processed"`
	Total     int          `json:"total"`
	Success   int          `json:"success"`
	Failed    int          `json:"failed"`
	Done      bool         `json:"done"`
}
