//go:build integration

package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestConsumer_DeliversPhotoEvents(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	nc, js, err := Connect(fmt.Sprintf("nats://%s:%s", host, port.Port()))
	require.NoError(t, err)
	defer nc.Close()

	require.NoError(t, EnsureStream(ctx, js, discard()))

	refID := uuid.New()
	processed := make(chan struct{}, 1)
	svc := &MockEventService{}
	svc.On("StoreFaceEmbedding", mock.Anything, refID, "").
		Run(func(mock.Arguments) { processed <- struct{}{} }).
		Return(true, nil)

	runCtx, cancel := context.WithCancel(ctx)
	consumer := NewConsumer(js, "facematch-test", 2, discard())
	dispatcher := NewDispatcher(svc, discard())
	require.NoError(t, consumer.Start(runCtx, func(ctx context.Context, msg jetstream.Msg) error {
		return dispatcher.Handle(ctx, msg)
	}))

	require.NoError(t, NewProducer(js).PublishPhotoUpdated(ctx, PhotoUpdated{ReferenceID: refID}))

	select {
	case <-processed:
	case <-time.After(20 * time.Second):
		t.Fatal("event was not processed")
	}

	cancel()
	consumer.Wait()
	assert.True(t, svc.AssertExpectations(t))
}
