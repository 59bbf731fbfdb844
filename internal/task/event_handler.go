package task

import (
	"context"

	"github.com/phrazzld/scry-tasks/internal/events"
)

// publish emits a lifecycle event for item: a targeted copy to the session
// that requested the task, and a broadcast to every other session.
func (d *Dispatcher) publish(item *QueueItem, eventType events.EventType, payload interface{}) {
	event, err := events.NewEvent(eventType, item.TaskID, payload)
	if err != nil {
		d.logger.Error("failed to build event",
			"task_id", item.TaskID,
			"event_type", eventType,
			"error", err)
		return
	}

	ctx := context.Background()
	if item.SessionID != "" {
		if err := d.emitter.EmitEvent(ctx, event.Targeted(item.SessionID)); err != nil {
			d.logger.Warn("targeted event not delivered",
				"task_id", item.TaskID,
				"session_id", item.SessionID,
				"event_type", eventType,
				"error", err)
		}
		event = event.Excluding(item.SessionID)
	}
	if err := d.emitter.EmitEvent(ctx, event); err != nil {
		d.logger.Warn("broadcast event not fully delivered",
			"task_id", item.TaskID,
			"event_type", eventType,
			"error", err)
	}
}

// reply emits an event to the requesting session only.
func (d *Dispatcher) reply(item *QueueItem, eventType events.EventType, payload interface{}) {
	event, err := events.NewEvent(eventType, item.TaskID, payload)
	if err != nil {
		d.logger.Error("failed to build event",
			"task_id", item.TaskID,
			"event_type", eventType,
			"error", err)
		return
	}
	if err := d.emitter.EmitEvent(context.Background(), event.Targeted(item.SessionID)); err != nil {
		d.logger.Warn("reply not delivered",
			"task_id", item.TaskID,
			"session_id", item.SessionID,
			"error", err)
	}
}
