package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
)

func TestPublishSyncKeepsOrder(t *testing.T) {
	service := NewService(arbor.NewLogger())
	ctx := context.Background()

	var got []int
	require.NoError(t, service.Subscribe(interfaces.EventProgress, func(ctx context.Context, event interfaces.Event) error {
		got = append(got, event.Payload.(*models.ProgressEvent).Progress)
		return nil
	}))

	for _, p := range []int{5, 15, 20, 95, 100} {
		require.NoError(t, service.PublishSync(ctx, interfaces.Event{
			Type:    interfaces.EventProgress,
			Payload: &models.ProgressEvent{PostID: "p", Progress: p},
		}))
	}
	assert.Equal(t, []int{5, 15, 20, 95, 100}, got)
}

func TestPublishSyncIsolatesFailingHandlers(t *testing.T) {
	service := NewService(arbor.NewLogger())
	ctx := context.Background()

	delivered := 0
	require.NoError(t, service.Subscribe(interfaces.EventProgress, func(ctx context.Context, event interfaces.Event) error {
		panic("subscriber bug")
	}))
	require.NoError(t, service.Subscribe(interfaces.EventProgress, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("sink down")
	}))
	require.NoError(t, service.Subscribe(interfaces.EventProgress, func(ctx context.Context, event interfaces.Event) error {
		delivered++
		return nil
	}))

	err := service.PublishSync(ctx, interfaces.Event{Type: interfaces.EventProgress, Payload: &models.ProgressEvent{}})
	assert.Error(t, err)
	assert.Equal(t, 1, delivered)
}

func TestPublishAsyncAndClose(t *testing.T) {
	service := NewService(arbor.NewLogger())
	ctx := context.Background()

	done := make(chan struct{})
	require.NoError(t, service.Subscribe(interfaces.EventPostStatus, func(ctx context.Context, event interfaces.Event) error {
		close(done)
		return nil
	}))
	require.NoError(t, service.Publish(ctx, interfaces.Event{Type: interfaces.EventPostStatus}))
	<-done

	assert.Error(t, service.Subscribe(interfaces.EventProgress, nil))
	require.NoError(t, service.Close())
	assert.NoError(t, service.PublishSync(ctx, interfaces.Event{Type: interfaces.EventPostStatus}))
}

func TestLoggerSubscriber(t *testing.T) {
	service := NewService(arbor.NewLogger())
	require.NoError(t, SubscribeLoggerToAllEvents(service, arbor.NewLogger()))

	err := service.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventPostStatus,
		Payload: &models.ProgressEvent{Type: models.ProgressStatusUpdate, PostID: "p", NewStatus: models.PostStatusPublishing},
	})
	assert.NoError(t, err)
}
