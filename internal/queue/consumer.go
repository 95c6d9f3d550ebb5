package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	defaultAckWait  = 30 * time.Second
	maxDeliver      = 3
	fetchMaxWait    = 5 * time.Second
	progressEvery   = 10 * time.Second
	ensureAttempts  = 30
	ensureRetryWait = time.Second
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// Connect opens a NATS connection that keeps reconnecting in the background.
func Connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("facematch"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates the FACEMATCH stream if it doesn't exist.
// Retries to handle NATS startup delay.
func EnsureStream(ctx context.Context, js jetstream.JetStream, logger *slog.Logger) error {
	cfg := jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectBase + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Duplicates:  time.Minute,
		Description: "Reference photo and provider change events",
	}

	for attempt := 1; ; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			logger.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == ensureAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, attempt)
		}
		logger.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ensureRetryWait):
		}
	}
}

// Consumer pulls events from the FACEMATCH stream with a durable consumer
// and fans them out to a fixed number of workers.
type Consumer struct {
	js      jetstream.JetStream
	name    string
	workers int
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewConsumer(js jetstream.JetStream, name string, workers int, logger *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		js:      js,
		name:    name,
		workers: workers,
		logger:  logger.With("component", "consumer", "consumer", name),
	}
}

// Start begins consuming until ctx is cancelled. Wait blocks until the
// workers have drained.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, StreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", StreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          c.name,
		Durable:       c.name,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       defaultAckWait,
		MaxDeliver:    maxDeliver,
		FilterSubject: SubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", c.name, err)
	}

	msgCh := make(chan jetstream.Msg, c.workers*2)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(msgCh)
		c.fetchLoop(ctx, cons, msgCh)
	}()

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			for msg := range msgCh {
				c.process(ctx, workerID, msg, handler)
			}
		}(i)
	}

	c.logger.Info("event consumer started", "workers", c.workers)
	return nil
}

func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) fetchLoop(ctx context.Context, cons jetstream.Consumer, msgCh chan<- jetstream.Msg) {
	for {
		if ctx.Err() != nil {
			return
		}

		batch, err := cons.Fetch(c.workers, jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("fetch events error", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for msg := range batch.Messages() {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID int, msg jetstream.Msg, handler MessageHandler) {
	// Long regenerations outlive AckWait; keep extending it while working.
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(progressEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = msg.InProgress()
			}
		}
	}()

	err := handler(ctx, msg)
	close(done)

	if settleErr := Settle(msg, err); settleErr != nil {
		c.logger.Warn("failed to settle event", "subject", msg.Subject(), "error", settleErr)
	}
	if err != nil {
		c.logger.Error("process event error", "worker", workerID, "subject", msg.Subject(), "error", err)
	}
}

// Acknowledger is the settlement part of jetstream.Msg
type Acknowledger interface {
	Ack() error
	Nak() error
	Term() error
}

// Settle acknowledges a message according to the handler result.
func Settle(msg Acknowledger, err error) error {
	switch {
	case err == nil:
		return msg.Ack()
	case errors.Is(err, ErrMalformedEvent):
		return msg.Term()
	default:
		return msg.Nak()
	}
}
