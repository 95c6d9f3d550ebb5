package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventFaceExtracted         EventType = "FACE_EXTRACTED"
	EventFaceCompared          EventType = "FACE_COMPARED"
	EventFaceSearched          EventType = "FACE_SEARCHED"
	EventEmbeddingStored       EventType = "EMBEDDING_STORED"
	EventEmbeddingsRegenerated EventType = "EMBEDDINGS_REGENERATED"
)

// Event represents an audit event for biometric data processing
type Event struct {
	ID          uuid.UUID         `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	EventType   EventType         `json:"event_type"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Provider    string            `json:"provider"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("reference_id", event.ReferenceID),
		slog.String("provider", event.Provider),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// Record builds an event from an operation outcome and logs it, ignoring
// logging failures.
func Record(ctx context.Context, l Logger, eventType EventType, provider, referenceID string, err error, metadata map[string]string) {
	if l == nil {
		return
	}
	event := Event{
		EventType:   eventType,
		ReferenceID: referenceID,
		Provider:    provider,
		Success:     err == nil,
		Metadata:    metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	_ = l.Log(ctx, event)
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}
