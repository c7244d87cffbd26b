package events

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs progress events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		if progress, ok := event.Payload.(*models.ProgressEvent); ok {
			logEvent = logEvent.
				Str("post_id", progress.PostID).
				Str("type", string(progress.Type)).
				Int("progress", progress.Progress)
			if progress.TaskType != "" {
				logEvent = logEvent.Str("task_type", string(progress.TaskType))
			}
			if progress.NewStatus != "" {
				logEvent = logEvent.Str("new_status", string(progress.NewStatus))
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)
	for _, eventType := range []interfaces.EventType{
		interfaces.EventProgress,
		interfaces.EventPostStatus,
	} {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return err
		}
	}
	return nil
}
