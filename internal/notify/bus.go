package notify

import (
	"context"
	"time"

	"cronbot/internal/eventbus"
)

// FiringEvent is the Data of a "job.notify" event published by Bus.
type FiringEvent struct {
	JobInfo
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// EventNotify is the event type published by Bus.
const EventNotify = "job.notify"

// Bus publishes each firing on an in-process event bus. It never fails.
type Bus struct{ B eventbus.Bus }

func (b Bus) Notify(ctx context.Context, message string, extra map[string]any) error {
	info, _ := JobFrom(ctx)
	b.B.Publish(eventbus.Event{
		Type: EventNotify,
		Time: time.Now(),
		Data: FiringEvent{JobInfo: info, Message: message, Extra: extra},
	})
	return nil
}
