package orchestrator

import (
	"context"
	"time"
)

// EventType distinguishes the two kinds of status change events.
type EventType string

const (
	EventWorkflowStatusChanged EventType = "workflow_status_changed"
	EventTaskStatusChanged     EventType = "task_status_changed"
)

// Event is a status change notification pushed to subscribers. The query
// interface stays the source of truth, events are best effort.
type Event struct {
	Type       EventType `json:"type"`
	WorkflowID string    `json:"workflow_id"`
	Stage      string    `json:"stage,omitempty"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier receives status change events. Implementations must not block
// the caller, slow consumers drop events rather than stall the engine.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Notifiers fans an event out to multiple notifiers.
func Notifiers(ns ...Notifier) Notifier {
	return multiNotifier(ns)
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, e Event) {}
