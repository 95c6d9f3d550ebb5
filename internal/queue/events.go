package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/metrics"
)

const (
	StreamName  = "FACEMATCH"
	SubjectBase = "facematch"

	SubjectPhotoUpdated    = SubjectBase + ".photo.updated"
	SubjectProviderChanged = SubjectBase + ".provider.changed"
)

// ErrMalformedEvent marks events that can never succeed; they are
// terminated instead of redelivered.
var ErrMalformedEvent = errors.New("malformed event")

// PhotoUpdated is published when a reference photo is created or replaced.
type PhotoUpdated struct {
	ReferenceID uuid.UUID `json:"reference_id"`
	PhotoURL    string    `json:"photo_url,omitempty"`
}

// ProviderChanged is published after the active provider record is edited.
type ProviderChanged struct {
	ConfigID uuid.UUID `json:"config_id,omitempty"`
}

// Message is the part of jetstream.Msg the dispatcher needs
type Message interface {
	Subject() string
	Data() []byte
}

// EventService is implemented by service.FaceMatchService
type EventService interface {
	StoreFaceEmbedding(ctx context.Context, referenceID uuid.UUID, photoRef string) (bool, error)
	ProviderChanged(ctx context.Context) (*domain.RegenerationReport, error)
}

// Dispatcher routes events to the face matching service by subject.
type Dispatcher struct {
	service EventService
	logger  *slog.Logger
}

func NewDispatcher(service EventService, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{service: service, logger: logger.With("component", "events")}
}

// Handle processes one event. A nil return acknowledges the message;
// errors wrapping ErrMalformedEvent terminate it; any other error asks for
// redelivery.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) error {
	subject := msg.Subject()

	var err error
	switch subject {
	case SubjectPhotoUpdated:
		err = d.photoUpdated(ctx, msg.Data())
	case SubjectProviderChanged:
		err = d.providerChanged(ctx)
	default:
		err = fmt.Errorf("%w: unknown subject %q", ErrMalformedEvent, subject)
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.EventsProcessed.WithLabelValues(subject, outcome).Inc()
	return err
}

func (d *Dispatcher) photoUpdated(ctx context.Context, data []byte) error {
	var event PhotoUpdated
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.ReferenceID == uuid.Nil {
		return fmt.Errorf("%w: reference_id is required", ErrMalformedEvent)
	}

	stored, err := d.service.StoreFaceEmbedding(ctx, event.ReferenceID, event.PhotoURL)
	switch {
	case errors.Is(err, domain.ErrReferenceNotFound), errors.Is(err, domain.ErrValidationFailed):
		// The reference is gone or has no photo; retrying cannot help.
		d.logger.Warn("dropping photo event", "reference_id", event.ReferenceID, "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("store face embedding %s: %w", event.ReferenceID, err)
	}

	d.logger.Info("photo event processed", "reference_id", event.ReferenceID, "stored", stored)
	return nil
}

func (d *Dispatcher) providerChanged(ctx context.Context) error {
	report, err := d.service.ProviderChanged(ctx)
	if err != nil {
		return fmt.Errorf("regenerate after provider change: %w", err)
	}

	d.logger.Info("provider change processed",
		"total", report.Total,
		"success", report.Success,
		"failed", report.Failed,
	)
	return nil
}
