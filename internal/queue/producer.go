package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher is the part of jetstream.JetStream used to emit events
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type Producer struct {
	js Publisher
}

func NewProducer(js Publisher) *Producer {
	return &Producer{js: js}
}

// PublishPhotoUpdated asks consumers to refresh one reference embedding.
func (p *Producer) PublishPhotoUpdated(ctx context.Context, event PhotoUpdated) error {
	return p.publish(ctx, SubjectPhotoUpdated, event)
}

// PublishProviderChanged asks consumers to regenerate every embedding.
func (p *Producer) PublishProviderChanged(ctx context.Context, event ProviderChanged) error {
	return p.publish(ctx, SubjectProviderChanged, event)
}

func (p *Producer) publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
